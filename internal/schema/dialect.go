package schema

import (
	"regexp"
	"strings"
)

// Query - шаблон SQL, в котором идентификаторы записаны как {snake_name}.
// Один шаблон обслуживает оба соглашения об именах.
type Query string

var tokenRe = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Dialect переводит логические идентификаторы в литеральное написание режима.
type Dialect struct {
	overrides map[string]string
}

// NewDialect создает диалект; overrides задают нестандартные имена Secondary-схемы
// (например, "id" -> "ID").
func NewDialect(overrides map[string]string) Dialect {
	cp := make(map[string]string, len(overrides))
	for k, v := range overrides {
		cp[k] = v
	}
	return Dialect{overrides: cp}
}

// Ident возвращает идентификатор в написании режима.
func (d Dialect) Ident(mode Mode, name string) string {
	if mode == Primary {
		return name
	}
	if v, ok := d.overrides[name]; ok {
		return quoteIdent(v)
	}
	return quoteIdent(pascal(name))
}

// Render подставляет идентификаторы в шаблон.
func (d Dialect) Render(mode Mode, q Query) string {
	return tokenRe.ReplaceAllStringFunc(string(q), func(tok string) string {
		return d.Ident(mode, tok[1:len(tok)-1])
	})
}

func pascal(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
