// Package variant computes the script-variant titles (Simplified,
// Traditional, Hong Kong, Taiwan) that should redirect to the same page as
// a given title.
package variant

import (
	"fmt"

	"github.com/longbridgeapp/opencc"
)

// Converter performs the six conversions the bot needs.
type Converter interface {
	ToTraditional(s string) (string, error)
	ToHongKong(s string) (string, error)
	ToTaiwan(s string) (string, error)
	ToSimplified(s string) (string, error)
	HongKongToSimplified(s string) (string, error)
	TaiwanToSimplified(s string) (string, error)
}

// OpenCC implements Converter with OpenCC dictionaries
type OpenCC struct {
	s2t  *opencc.OpenCC
	s2hk *opencc.OpenCC
	s2tw *opencc.OpenCC
	t2s  *opencc.OpenCC
	hk2s *opencc.OpenCC
	tw2s *opencc.OpenCC
}

// NewOpenCC loads every dictionary up front so conversions never fail on a
// missing configuration later.
func NewOpenCC() (*OpenCC, error) {
	c := &OpenCC{}
	for _, cfg := range []struct {
		name string
		dst  **opencc.OpenCC
	}{
		{"s2t", &c.s2t},
		{"s2hk", &c.s2hk},
		{"s2tw", &c.s2tw},
		{"t2s", &c.t2s},
		{"hk2s", &c.hk2s},
		{"tw2s", &c.tw2s},
	} {
		cc, err := opencc.New(cfg.name)
		if err != nil {
			return nil, fmt.Errorf("failed to load opencc %s: %w", cfg.name, err)
		}
		*cfg.dst = cc
	}
	return c, nil
}

func (c *OpenCC) ToTraditional(s string) (string, error)        { return c.s2t.Convert(s) }
func (c *OpenCC) ToHongKong(s string) (string, error)           { return c.s2hk.Convert(s) }
func (c *OpenCC) ToTaiwan(s string) (string, error)             { return c.s2tw.Convert(s) }
func (c *OpenCC) ToSimplified(s string) (string, error)         { return c.t2s.Convert(s) }
func (c *OpenCC) HongKongToSimplified(s string) (string, error) { return c.hk2s.Convert(s) }
func (c *OpenCC) TaiwanToSimplified(s string) (string, error)   { return c.tw2s.Convert(s) }

// Mode selects how a title is classified as Simplified.
type Mode string

const (
	// ModeLiteral treats a title as Simplified when converting it to
	// Traditional leaves it unchanged. This is the historical behaviour of
	// the bot and is kept as the default.
	ModeLiteral Mode = "literal"
	// ModeSimplified treats a title as Simplified when converting it to
	// Simplified leaves it unchanged.
	ModeSimplified Mode = "simplified"
)

// ParseMode validates a configured classification mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLiteral, ModeSimplified:
		return Mode(s), nil
	case "":
		return ModeLiteral, nil
	}
	return "", fmt.Errorf("unknown variant classification mode %q", s)
}

// TitleSet is the fixed trio of candidate titles derived from one title.
type TitleSet [3]string

// IsSimplified classifies title according to mode.
func IsSimplified(conv Converter, title string, mode Mode) (bool, error) {
	if mode == ModeSimplified {
		s, err := conv.ToSimplified(title)
		if err != nil {
			return false, err
		}
		return s == title, nil
	}
	t, err := conv.ToTraditional(title)
	if err != nil {
		return false, err
	}
	return t == title, nil
}

// Titles returns the three variant titles for title. Simplified titles map
// to their Traditional, Hong Kong and Taiwan forms; anything else maps to
// the Simplified forms reached from the generic, Hong Kong and Taiwan
// standards.
func Titles(conv Converter, title string, mode Mode) (TitleSet, error) {
	simplified, err := IsSimplified(conv, title, mode)
	if err != nil {
		return TitleSet{}, fmt.Errorf("classify %q: %w", title, err)
	}

	funcs := [3]func(string) (string, error){conv.ToSimplified, conv.HongKongToSimplified, conv.TaiwanToSimplified}
	if simplified {
		funcs = [3]func(string) (string, error){conv.ToTraditional, conv.ToHongKong, conv.ToTaiwan}
	}

	var set TitleSet
	for i, f := range funcs {
		out, err := f(title)
		if err != nil {
			return TitleSet{}, fmt.Errorf("convert %q: %w", title, err)
		}
		set[i] = out
	}
	return set, nil
}
