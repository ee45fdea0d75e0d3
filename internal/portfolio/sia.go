package portfolio

import (
	"fmt"
	"strings"
	"unicode"
)

// SIAList holds the trainee's specialist interest areas. Its lifecycle is
// independent of the evidence collection.
type SIAList struct {
	items   []SIA
	counter uint64
}

func NewSIAList() *SIAList {
	return &SIAList{}
}

func (l *SIAList) Items() []SIA {
	out := make([]SIA, len(l.items))
	copy(out, l.items)
	return out
}

func (l *SIAList) Get(id string) (SIA, bool) {
	for _, sia := range l.items {
		if sia.ID == id {
			return sia, true
		}
	}
	return SIA{}, false
}

// Upsert updates the SIA matching the id or appends a new one. Supervisor
// initials are recomputed from the name on every update.
func (l *SIAList) Upsert(sia SIA) SIA {
	sia.SupervisorInitials = Initials(sia.SupervisorName)
	if sia.ID != "" {
		for i, existing := range l.items {
			if existing.ID == sia.ID {
				l.items[i] = sia
				return sia
			}
		}
	}
	l.counter++
	sia.ID = fmt.Sprintf("sia-%d", l.counter)
	l.items = append(l.items, sia)
	return sia
}

// Remove deletes an SIA by id. Removing an absent id is a no-op.
func (l *SIAList) Remove(id string) {
	for i, sia := range l.items {
		if sia.ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

// Initials derives uppercase initials from a person's name, one letter per
// word. "Asha de Souza" becomes "ADS".
func Initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			if unicode.IsLetter(r) {
				b.WriteRune(unicode.ToUpper(r))
				break
			}
		}
	}
	return b.String()
}
