package workflow

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Supplier is the vendor a purchase order is placed with
type Supplier struct {
	Name    string
	Email   string
	Contact string
}

const DefaultSupplierName = "Default Supplier"

var supplierCatalog = []struct {
	keywords []string
	name     string
}{
	{[]string{"laptop", "computer"}, "Supplier A"},
	{[]string{"software", "license"}, "Supplier B"},
	{[]string{"furniture", "chair"}, "Supplier C"},
	{[]string{"stationery", "office"}, "Supplier D"},
}

// SupplierFor picks the supplier by ordered keyword match on the request title
func SupplierFor(title string) Supplier {
	name := DefaultSupplierName
	for _, entry := range supplierCatalog {
		if containsAny(title, entry.keywords) {
			name = entry.name
			break
		}
	}
	return Supplier{
		Name:    name,
		Email:   supplierEmail(name),
		Contact: supplierContact(name),
	}
}

func supplierEmail(name string) string {
	local := strings.NewReplacer(" ", "", ".", "").Replace(strings.ToLower(name))
	return "orders@" + local + ".com"
}

// supplierContact derives a stable ten-digit phone number from the supplier name
func supplierContact(name string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("+1-%d", 1000000000+h.Sum64()%9000000000)
}
