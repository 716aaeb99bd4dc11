package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"procureflow/internal/middleware"
	"procureflow/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "scan", "seed"}, names)

	root.SetArgs([]string{"scan"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestPrintToken(t *testing.T) {
	var out bytes.Buffer
	user := &model.User{ID: uuid.New(), Username: "manager.it", Role: model.RoleManager}

	require.NoError(t, printToken(&out, middleware.NewAuth([]byte("k")), user, time.Hour))

	fields := strings.Fields(out.String())
	require.Len(t, fields, 3)
	assert.Equal(t, "manager.it", fields[0])
	assert.Equal(t, model.RoleManager, fields[1])
	assert.Equal(t, 2, strings.Count(fields[2], "."))
}
