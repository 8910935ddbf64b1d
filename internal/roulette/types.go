package roulette

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrTemplateNotFound    = errors.New("roulette template not found")
	ErrTemplateDisabled    = errors.New("roulette template is disabled")
	ErrInvalidTemplate     = errors.New("invalid roulette template")
	ErrInsufficientTickets = errors.New("insufficient roulette tickets")
	ErrInvalidCount        = errors.New("spin count must be positive")
	ErrKeepItemNotFound    = errors.New("keep item not found")
)

// Record keys.
const (
	keyTemplates = "roulette:templates"
	keyHistory   = "roulette:history"
	keyCounters  = "roulette:counters"
)

func ticketsKey(userID string) string { return "roulette:tickets:" + userID }
func keepKey(userID string) string { return "roulette:keep:" + userID }

// Mode decides how tickets for a template are issued.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeLike   Mode = "like"
	ModeSpoon  Mode = "spoon"
)

// ItemType decides how a win is settled.
type ItemType string

const (
	// ItemCounter adds Value to the shared counter named by the item label.
	ItemCounter ItemType = "counter"
	// ItemTicket grants Value lottery tickets.
	ItemTicket ItemType = "ticket"
	// ItemKeep is stored in the winner's keep list until redeemed.
	ItemKeep ItemType = "keep"
)

func (t ItemType) instant() bool {
	return t == ItemCounter || t == ItemTicket
}

type Item struct {
	Type       ItemType `json:"type"`
	Label      string   `json:"label"`
	Percentage float64  `json:"percentage"`
	Value      int      `json:"value,omitempty"`
}

// amount is the per-win quantity for instant items.
func (it Item) amount() int {
	if it.Value <= 0 {
		return 1
	}
	return it.Value
}

// Template is an ordered list of items. Order defines the draw boundaries.
type Template struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Mode     Mode   `json:"mode"`
	Items    []Item `json:"items"`
	Division int    `json:"division"`
	AutoRun  bool   `json:"auto_run"`
	Enabled  bool   `json:"enabled"`
}

const percentEpsilon = 1e-9

// Validate normalizes defaults and checks the template.
func (t *Template) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTemplate)
	}
	switch t.Mode {
	case "":
		t.Mode = ModeManual
	case ModeManual, ModeLike, ModeSpoon:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidTemplate, t.Mode)
	}
	if t.Division <= 0 {
		t.Division = 1
	}
	if len(t.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidTemplate)
	}

	sum := 0.0
	for i, it := range t.Items {
		switch it.Type {
		case ItemCounter, ItemTicket, ItemKeep:
		default:
			return fmt.Errorf("%w: item %d has unknown type %q", ErrInvalidTemplate, i, it.Type)
		}
		if strings.TrimSpace(it.Label) == "" {
			return fmt.Errorf("%w: item %d has no label", ErrInvalidTemplate, i)
		}
		if math.IsNaN(it.Percentage) || it.Percentage <= 0 || it.Percentage > 100 {
			return fmt.Errorf("%w: item %q percentage must be in (0, 100]", ErrInvalidTemplate, it.Label)
		}
		sum += it.Percentage
	}
	if sum > 100+percentEpsilon {
		return fmt.Errorf("%w: percentages sum to %.4f", ErrInvalidTemplate, sum)
	}
	return nil
}

// KeepItem is a deferred win owned by a viewer.
type KeepItem struct {
	Type         ItemType  `json:"type"`
	Label        string    `json:"label"`
	Count        int       `json:"count"`
	Percentage   float64   `json:"percentage"`
	TemplateID   string    `json:"template_id"`
	TemplateName string    `json:"template_name"`
	Timestamp    time.Time `json:"timestamp"`
}

// HistoryRecord logs one winning group. Misses are never logged.
// UsedCount tracks redeemed units; Used is set once every unit is redeemed.
type HistoryRecord struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id"`
	UserID     string    `json:"user_id"`
	Item       Item      `json:"item"`
	Count      int       `json:"count"`
	UsedCount  int       `json:"used_count"`
	Used       bool      `json:"used"`
	Timestamp  time.Time `json:"timestamp"`
}

// redeem marks one more unit as used.
func (r *HistoryRecord) redeem() {
	r.UsedCount++
	r.Used = r.UsedCount >= r.Count
}

// Group is the outcome of a spin for one label.
type Group struct {
	Item  Item `json:"item"`
	Miss  bool `json:"miss"`
	Count int  `json:"count"`
}

type SpinResult struct {
	TemplateID   string  `json:"template_id"`
	TemplateName string  `json:"template_name"`
	UserID       string  `json:"user_id"`
	Nickname     string  `json:"nickname"`
	Count        int     `json:"count"`
	Groups       []Group `json:"groups"`
	Rare         bool    `json:"rare"`
	Remaining    int     `json:"remaining"`
}

// AllMiss reports whether nothing was won.
func (r SpinResult) AllMiss() bool {
	for _, g := range r.Groups {
		if !g.Miss {
			return false
		}
	}
	return true
}

type IssueResult struct {
	TemplateID   string      `json:"template_id"`
	TemplateName string      `json:"template_name"`
	Balance      int         `json:"balance"`
	Spin         *SpinResult `json:"spin,omitempty"`
}
