// Package translit converts text between alphabets using a substitution table.
//
// A Translator scans its input left to right and, at every position, replaces
// the longest table key that is a prefix of the remaining text. Characters not
// covered by the table are copied unchanged, so "щука" becomes "shchuka" and
// Latin input passes through a Russian-to-Latin translator untouched.
package translit

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Translator performs longest-match transliteration over a fixed table.
// It is immutable after construction and safe for concurrent use.
type Translator struct {
	table map[string]string
	keys  []string // longest first
}

type options struct {
	reverse bool
	upper   bool
}

// Option configures a Translator.
type Option func(*options)

// Reverse inverts the table, so values become keys. When two keys share a
// value, the one that sorts last wins.
func Reverse() Option {
	return func(o *options) { o.reverse = true }
}

// WithUpper adds an uppercase mirror of every entry (key and value uppercased).
// The mirror replaces an explicit entry with the same uppercase key.
func WithUpper() Option {
	return func(o *options) { o.upper = true }
}

// New builds a Translator from table. Empty keys are dropped.
func New(table map[string]string, opts ...Option) *Translator {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	src := table
	if o.upper {
		src = withUpper(table)
	}
	if o.reverse {
		src = invert(src)
	}

	t := &Translator{table: make(map[string]string, len(src))}
	for k, v := range src {
		if k == "" {
			continue
		}
		t.table[k] = v
		t.keys = append(t.keys, k)
	}

	sort.Slice(t.keys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(t.keys[i]), utf8.RuneCountInString(t.keys[j])
		if li != lj {
			return li > lj
		}
		return t.keys[i] < t.keys[j]
	})

	return t
}

// Transliterate returns s with every table key replaced by its value.
func (t *Translator) Transliterate(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		rest := s[i:]
		matched := false
		for _, k := range t.keys {
			if strings.HasPrefix(rest, k) {
				b.WriteString(t.table[k])
				i += len(k)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		_, size := utf8.DecodeRuneInString(rest)
		b.WriteString(rest[:size])
		i += size
	}

	return b.String()
}

// Len reports the number of entries in the table.
func (t *Translator) Len() int {
	return len(t.keys)
}

func withUpper(table map[string]string) map[string]string {
	keys := make([]string, 0, len(table))
	out := make(map[string]string, len(table)*2)
	for k, v := range table {
		out[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		uk := strings.ToUpper(k)
		if uk == k {
			continue
		}
		out[uk] = strings.ToUpper(table[k])
	}
	return out
}

func invert(table map[string]string) map[string]string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(table))
	for _, k := range keys {
		out[table[k]] = k
	}
	return out
}

var (
	ruEnOnce = sync.OnceValue(func() *Translator { return New(RuEn, WithUpper()) })
	enRuOnce = sync.OnceValue(func() *Translator { return New(EnRu, WithUpper()) })
)

// RuEnTranslator returns the shared Russian-to-Latin translator.
func RuEnTranslator() *Translator { return ruEnOnce() }

// EnRuTranslator returns the shared Latin-to-Russian translator.
func EnRuTranslator() *Translator { return enRuOnce() }
