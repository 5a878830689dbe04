package dashboard

import "strings"

// Tab is a dashboard tab.
type Tab string

const (
	TabProtocol     Tab = "protocol"
	TabPoolOverview Tab = "poolOverview"
	TabPool         Tab = "pool"
	TabEvents       Tab = "events"
	TabPositions    Tab = "positions"
)

// Tabs in display order.
var Tabs = []Tab{TabProtocol, TabPoolOverview, TabPool, TabEvents, TabPositions}

// ParseTab matches s case-insensitively; anything unknown is TabProtocol.
func ParseTab(s string) Tab {
	for _, t := range Tabs {
		if strings.EqualFold(s, string(t)) {
			return t
		}
	}
	return TabProtocol
}

// Index returns the tab's 1-based position as used by the tab widget.
func (t Tab) Index() string {
	for i, tab := range Tabs {
		if tab == t {
			return string(rune('1' + i))
		}
	}
	return "1"
}

// TabFromIndex is the inverse of Index.
func TabFromIndex(s string) Tab {
	for _, t := range Tabs {
		if t.Index() == s {
			return t
		}
	}
	return TabProtocol
}

// NeedsPool reports whether the tab shows a single pool.
func (t Tab) NeedsPool() bool {
	return t == TabPool || t == TabEvents || t == TabPositions
}
