package schema

// Mode - соглашение об именовании таблиц и колонок в подключенной базе.
type Mode int

const (
	// Primary: snake_case без кавычек (orders, payment_status).
	Primary Mode = iota
	// Secondary: PascalCase в кавычках ("Orders", "PaymentStatus").
	Secondary
)

func (m Mode) String() string {
	if m == Secondary {
		return "secondary"
	}
	return "primary"
}

// Alternate возвращает противоположное соглашение.
func (m Mode) Alternate() Mode {
	if m == Secondary {
		return Primary
	}
	return Secondary
}

// ParseMode разбирает значение из конфига; "auto" и пустая строка означают автоопределение.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "primary":
		return Primary, true
	case "secondary":
		return Secondary, true
	default:
		return Primary, false
	}
}
