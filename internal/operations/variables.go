package operations

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/bus"
	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

func (h *handlers) incrementCustomVariable(ctx context.Context, defs types.Definitions, _ types.Attributes) error {
	return h.addToVariable(ctx, defs.String("customVariable"), defs.Number("numberToIncrement"))
}

func (h *handlers) decrementCustomVariable(ctx context.Context, defs types.Definitions, _ types.Attributes) error {
	return h.addToVariable(ctx, defs.String("customVariable"), -defs.Number("numberToDecrement"))
}

// addToVariable adds delta to the integer prefix of the current value. A
// value with no integer prefix is replaced by delta.
func (h *handlers) addToVariable(ctx context.Context, name string, delta float64) error {
	name = strings.Replace(name, "$_", "", 1)
	if name == "" {
		return fmt.Errorf("custom variable name is empty")
	}
	current, err := h.Variables.Get(ctx, "$_"+name)
	if err != nil && !errors.Is(err, types.ErrVariableNotFound) {
		return err
	}

	next := delta
	if n, ok := parseIntPrefix(current); ok {
		next = float64(n) + delta
	}
	if err := h.Variables.Set(ctx, "$_"+name, types.ToString(next)); err != nil {
		return err
	}
	return h.refreshTitle(ctx, name)
}

func (h *handlers) setCustomVariable(ctx context.Context, defs types.Definitions, attrs types.Attributes) error {
	name := strings.Replace(defs.String("customVariable"), "$_", "", 1)
	if name == "" {
		return fmt.Errorf("custom variable name is empty")
	}
	value := attributesReplace(attrs, defs.String("value"))
	if err := h.Variables.Set(ctx, "$_"+name, value); err != nil {
		return err
	}
	return h.refreshTitle(ctx, name)
}

// refreshTitle asks for a channel title update when the title template
// references the variable.
func (h *handlers) refreshTitle(ctx context.Context, name string) error {
	if h.Stream == nil {
		return nil
	}
	re, err := regexp.Compile(`(?i)\$_` + regexp.QuoteMeta(name))
	if err != nil {
		return err
	}
	if !re.MatchString(h.Stream.Title()) {
		return nil
	}
	return h.Publisher.Publish(ctx, bus.TopicChannelTitleRefresh, bus.TitleRefresh{Variable: "$_" + name})
}

// parseIntPrefix reads an optionally signed base-10 integer at the start of
// s after leading whitespace, ignoring anything that follows.
func parseIntPrefix(s string) (int64, bool) {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
