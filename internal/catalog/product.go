package catalog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Meta holds the optional attributes a product listing may carry.
type Meta struct {
	Model   string `json:"model,omitempty"`
	Storage string `json:"storage,omitempty"`
	Sim     string `json:"sim,omitempty"`
	Color   string `json:"color,omitempty"`
}

// Product is a single catalog listing. Prices are whole rubles.
type Product struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Price     int64  `json:"price"`
	Image     string `json:"image"`
	Meta      Meta   `json:"meta"`
	UpdatedTS int64  `json:"updated_ts,omitempty"`
}

var (
	reAppleIPhone = regexp.MustCompile(`(?i)^Смартфон\s+Apple\s+iPhone\s+`)
	reApple       = regexp.MustCompile(`(?i)^Смартфон\s+Apple\s+`)
	reGB          = regexp.MustCompile(`(?i)gb$`)
	reLeadingInt  = regexp.MustCompile(`^\s*(\d+)`)
)

// CleanTitle drops the vendor prefix used by the upstream price list.
func CleanTitle(title string) string {
	t := reAppleIPhone.ReplaceAllString(title, "iPhone ")
	t = reApple.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}

// StorageLabel normalizes a storage attribute to the "128GB" form.
func StorageLabel(storage string) string {
	raw := strings.TrimSpace(storage)
	if raw == "" {
		return ""
	}
	if reGB.MatchString(raw) {
		return strings.ToUpper(raw)
	}
	if m := reLeadingInt.FindStringSubmatch(raw); len(m) == 2 {
		return m[1] + "GB"
	}
	return ""
}

// MetaLine renders "storage • sim • color", skipping empty parts.
func MetaLine(p Product) string {
	sim := strings.TrimSpace(p.Meta.Sim)
	if strings.EqualFold(sim, "unknown") {
		sim = ""
	}
	var parts []string
	for _, part := range []string{StorageLabel(p.Meta.Storage), sim, strings.TrimSpace(p.Meta.Color)} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " • ")
}

// Models returns the distinct non-empty models, sorted, for the facet selector.
func Models(products []Product) []string {
	seen := make(map[string]struct{})
	var models []string
	for _, p := range products {
		m := strings.TrimSpace(p.Meta.Model)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// FormatPrice groups thousands with spaces: 100000 -> "100 000".
func FormatPrice(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
