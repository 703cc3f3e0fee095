package fat

import (
	"strconv"
	"strings"
)

const (
	maxLongName  = 255
	invalidChars = "\"*/:<>?\\|"
	// characters legal in a long name but not in an 8.3 name
	longOnlyChars = "+,;=[]"
)

func validName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > maxLongName {
		return false
	}
	for _, c := range name {
		if c < ' ' || strings.ContainsRune(invalidChars, c) {
			return false
		}
	}
	return true
}

// fits83 reports whether name can be stored as a short name alone, with
// the base and extension each in a single case.
func fits83(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	base, ext, hasDot := strings.Cut(name, ".")
	if strings.Contains(ext, ".") || (hasDot && ext == "") {
		return false
	}
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return false
	}
	return shortPart(base) && shortPart(ext)
}

func shortPart(s string) bool {
	upper, lower := false, false
	for _, c := range s {
		switch {
		case c > 0x7e || c == ' ' || strings.ContainsRune(longOnlyChars, c):
			return false
		case 'a' <= c && c <= 'z':
			lower = true
		case 'A' <= c && c <= 'Z':
			upper = true
		}
	}
	return !(upper && lower)
}

// generateShortName returns the 8.3 name for a long name, adding a numeric
// tail when the basis is lossy or already in use.
func generateShortName(longName string, usedNames []string) (string, error) {
	longName = strings.ToUpper(strings.TrimLeft(longName, ". "))
	base, ext := longName, ""
	if dot := strings.LastIndexByte(longName, '.'); dot >= 0 {
		base, ext = longName[:dot], longName[dot+1:]
	}
	base, lossyBase := sanitize(base)
	ext, lossyExt := sanitize(ext)
	lossy := lossyBase || lossyExt || len(base) > 8 || len(ext) > 3 || base == ""
	if len(ext) > 3 {
		ext = ext[:3]
	}
	if base == "" {
		base = "_"
	}

	used := func(candidate string) bool {
		for _, u := range usedNames {
			if strings.EqualFold(u, candidate) {
				return true
			}
		}
		return false
	}

	if !lossy {
		candidate := joinShort(base, ext)
		if !used(candidate) {
			return candidate, nil
		}
	}
	for n := 1; n < 1000000; n++ {
		tail := "~" + strconv.Itoa(n)
		b := base
		if len(b)+len(tail) > 8 {
			b = b[:8-len(tail)]
		}
		candidate := joinShort(b+tail, ext)
		if !used(candidate) {
			return candidate, nil
		}
	}
	return "", Fatalf("no short name available for %s", longName)
}

func sanitize(s string) (string, bool) {
	var b strings.Builder
	lossy := false
	for _, c := range s {
		switch {
		case c == ' ' || c == '.':
			lossy = true
		case c > 0x7e || strings.ContainsRune(longOnlyChars, c):
			b.WriteByte('_')
			lossy = true
		default:
			b.WriteRune(c)
		}
	}
	return b.String(), lossy
}

func joinShort(base, ext string) string {
	if ext == "" {
		return base
	}
	return base + "." + ext
}
