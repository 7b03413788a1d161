package raibin

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/eunmann/raibinary/pkg/value"
)

// validateRecord checks a record before any of it is registered, so a
// rejected record leaves no keys or shapes behind. It returns a rough
// encoded size used for chunk cutting.
func validateRecord(v value.Value, maxDepth int) (int, error) {
	return validateValue(v, 0, maxDepth)
}

func validateValue(v value.Value, depth, maxDepth int) (int, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("%w: deeper than %d", ErrDepthExceeded, maxDepth)
	}
	switch v.Kind() {
	case value.KindNull:
		return 1, nil
	case value.KindBool:
		return 1, nil
	case value.KindInt, value.KindUint, value.KindFloat:
		return 8, nil
	case value.KindString:
		s := v.AsString()
		if !utf8.ValidString(s) {
			return 0, fmt.Errorf("%w: string value", ErrInvalidUTF8)
		}
		if uint64(len(s)) > math.MaxUint32 {
			return 0, fmt.Errorf("%w: string of %d bytes", ErrUnrepresentable, len(s))
		}
		return 4 + len(s), nil
	case value.KindArray:
		size := 4
		for _, item := range v.Items() {
			n, err := validateValue(item, depth+1, maxDepth)
			if err != nil {
				return 0, err
			}
			size += n
		}
		return size, nil
	case value.KindObject:
		members := v.Members()
		if err := checkKeys(members); err != nil {
			return 0, err
		}
		size := 4
		for _, m := range members {
			n, err := validateValue(m.Value, depth+1, maxDepth)
			if err != nil {
				return 0, fmt.Errorf("%q: %w", m.Key, err)
			}
			size += n
		}
		return size, nil
	default:
		return 0, fmt.Errorf("%w: kind %d", ErrUnrepresentable, v.Kind())
	}
}

func checkKeys(members []value.Member) error {
	for _, m := range members {
		if !utf8.ValidString(m.Key) {
			return fmt.Errorf("%w: key %q", ErrInvalidUTF8, m.Key)
		}
	}
	if len(members) <= 8 {
		for i := 1; i < len(members); i++ {
			for j := 0; j < i; j++ {
				if members[i].Key == members[j].Key {
					return fmt.Errorf("%w: %q", ErrDuplicateKey, members[i].Key)
				}
			}
		}
		return nil
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.Key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, m.Key)
		}
		seen[m.Key] = struct{}{}
	}
	return nil
}
