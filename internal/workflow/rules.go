package workflow

import (
	"fmt"
	"strings"

	"procureflow/internal/model"

	"github.com/shopspring/decimal"
)

// Verdict is the outcome of the rule engine
type Verdict int

const (
	Escalate Verdict = iota
	AutoApprove
)

func (v Verdict) String() string {
	if v == AutoApprove {
		return "AUTO_APPROVE"
	}
	return "ESCALATE"
}

// Rule identifies which auto-approval rule matched
type Rule string

const (
	RuleITDepartment     Rule = "it-department"
	RuleRecurringService Rule = "recurring-service"
	RuleUrgentSmall      Rule = "urgent-small"
	RuleGeneralLimit     Rule = "general-limit"
	RuleNone             Rule = "none"
)

var (
	itDepartmentLimit     = decimal.NewFromInt(100000)
	recurringServiceLimit = decimal.NewFromInt(200000)
	urgentLimit           = decimal.NewFromInt(25000)
	generalLimit          = decimal.NewFromInt(50000)

	recurringKeywords = []string{"license", "subscription", "renewal", "maintenance"}
)

// Input carries the request attributes the rules look at
type Input struct {
	Amount     decimal.Decimal
	Department string
	Priority   model.Priority
	Title      string
}

// InputFor extracts rule input from a purchase request
func InputFor(req *model.PurchaseRequest) Input {
	return Input{
		Amount:     req.TotalAmount,
		Department: req.Department,
		Priority:   req.Priority,
		Title:      req.Title,
	}
}

// Decision is a verdict plus the rule that produced it
type Decision struct {
	Verdict Verdict
	Rule    Rule
}

// Decide applies the auto-approval rules in order; the first match wins.
func Decide(amount decimal.Decimal, department string, priority model.Priority, title string) Verdict {
	return decide(Input{Amount: amount, Department: department, Priority: priority, Title: title}).Verdict
}

// Evaluate is Decide with validation and the matched rule reported
func Evaluate(in Input) (Decision, error) {
	if in.Amount.IsNegative() {
		return Decision{}, fmt.Errorf("invalid amount %s: must not be negative", in.Amount)
	}
	return decide(in), nil
}

func decide(in Input) Decision {
	switch {
	case strings.EqualFold(in.Department, "IT") && in.Amount.LessThanOrEqual(itDepartmentLimit):
		return Decision{Verdict: AutoApprove, Rule: RuleITDepartment}
	case containsAny(in.Title, recurringKeywords) && in.Amount.LessThanOrEqual(recurringServiceLimit):
		return Decision{Verdict: AutoApprove, Rule: RuleRecurringService}
	case in.Priority == model.PriorityUrgent && in.Amount.LessThanOrEqual(urgentLimit):
		return Decision{Verdict: AutoApprove, Rule: RuleUrgentSmall}
	case in.Amount.LessThanOrEqual(generalLimit):
		return Decision{Verdict: AutoApprove, Rule: RuleGeneralLimit}
	default:
		return Decision{Verdict: Escalate, Rule: RuleNone}
	}
}

func containsAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
