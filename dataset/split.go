package dataset

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

var splitPattern = regexp.MustCompile(`^([A-Za-z0-9_\-]+)(?:\[(-?\d*):(-?\d*)\])?$`)

// Split selects a slice of a named split, e.g. "validation[:50]" or
// "train[100:200]". Negative bounds count from the end.
type Split struct {
	Name string
	// Start and End are slice bounds; nil means open.
	Start *int
	End   *int
}

// ParseSplit parses name, name[:N], name[A:] or name[A:B].
func ParseSplit(s string) (Split, error) {
	m := splitPattern.FindStringSubmatch(s)
	if m == nil {
		return Split{}, errors.Wrapf(ErrInvalidSplit, "%q", s)
	}

	split := Split{Name: m[1]}
	for i, dst := range []**int{&split.Start, &split.End} {
		raw := m[2+i]
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return Split{}, errors.Wrapf(ErrInvalidSplit, "%q: %v", s, err)
		}
		*dst = &v
	}
	return split, nil
}

// Bounds resolves the slice against n entries, clamping to [0, n].
func (s Split) Bounds(n int) (int, int) {
	resolve := func(p *int, def int) int {
		if p == nil {
			return def
		}
		v := *p
		if v < 0 {
			v += n
		}
		return max(0, min(v, n))
	}

	start := resolve(s.Start, 0)
	end := resolve(s.End, n)
	if end < start {
		end = start
	}
	return start, end
}

func (s Split) String() string {
	if s.Start == nil && s.End == nil {
		return s.Name
	}
	bound := func(p *int) string {
		if p == nil {
			return ""
		}
		return strconv.Itoa(*p)
	}
	return s.Name + "[" + bound(s.Start) + ":" + bound(s.End) + "]"
}
