package palette

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// Capacity is the number of colors a palette can address with one byte.
const Capacity = 256

// Fallback is returned for unknown indices and unparsable colors.
const Fallback = "#000000"

// Palette maps hex color strings to small indices and back.
// It only grows. Once full, new colors alias to index 0.
type Palette struct {
	colors []string
	index  map[string]int
	mu     sync.RWMutex
}

// New returns an empty palette.
func New() *Palette {
	return &Palette{index: make(map[string]int)}
}

// FromColors rebuilds a palette from a snapshot. The snapshot is authoritative:
// index i resolves to colors[i], duplicates included.
func FromColors(colors []string) *Palette {
	if len(colors) == 0 {
		return New()
	}
	p := &Palette{index: make(map[string]int, len(colors))}
	for _, c := range colors {
		if len(p.colors) == Capacity {
			glog.Warningf("[palette] snapshot has %d colors, keeping first %d", len(colors), Capacity)
			break
		}
		if _, exists := p.index[c]; !exists {
			p.index[c] = len(p.colors)
		}
		p.colors = append(p.colors, c)
	}
	return p
}

// IndexOf returns the index of c, registering it if needed. When the palette
// is full the color is aliased to index 0 and the palette is left untouched.
func (p *Palette) IndexOf(c string) int {
	p.mu.RLock()
	i, ok := p.index[c]
	p.mu.RUnlock()
	if ok {
		return i
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.index[c]; ok {
		return i
	}
	if len(p.colors) >= Capacity {
		glog.Warningf("[palette] full, color %s aliased to index 0 (%s)", c, p.colors[0])
		return 0
	}
	i = len(p.colors)
	p.colors = append(p.colors, c)
	p.index[c] = i
	return i
}

// Contains reports whether c already has an index.
func (p *Palette) Contains(c string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index[c]
	return ok
}

// ColorOf returns the color stored at i, or Fallback when i is out of range.
func (p *Palette) ColorOf(i int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.colors) {
		return Fallback
	}
	return p.colors[i]
}

// Len returns the number of registered colors.
func (p *Palette) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.colors)
}

// Full reports whether new colors would be aliased to index 0.
func (p *Palette) Full() bool {
	return p.Len() >= Capacity
}

// Colors returns a copy of the palette in index order.
func (p *Palette) Colors() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.colors))
	copy(out, p.colors)
	return out
}

// ParseHex converts "#rgb" or "#rrggbb" into an opaque color.
// Anything else resolves to black.
func ParseHex(s string) color.NRGBA {
	c, err := parseHex(s)
	if err != nil {
		glog.V(2).Infof("[palette] %v, using %s", err, Fallback)
		return color.NRGBA{A: 0xff}
	}
	return c
}

// Valid reports whether s is a hex color ParseHex understands.
func Valid(s string) bool {
	_, err := parseHex(s)
	return err == nil
}

// Hex formats c as "#RRGGBB", dropping alpha.
func Hex(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func parseHex(s string) (color.NRGBA, error) {
	h, ok := strings.CutPrefix(strings.TrimSpace(s), "#")
	if !ok {
		return color.NRGBA{}, fmt.Errorf("color %q has no # prefix", s)
	}
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("color %q has bad length", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
