package exchange

import (
	"fmt"
	"strings"
)

// SupportedGateways - список поддерживаемых шлюзов исполнения
var SupportedGateways = []string{
	"bybit",
	"paper",
}

// NewGateway создает новый экземпляр шлюза по имени
// paper-шлюз стартует с нулевым балансом, вызывающий код задаёт его сам
func NewGateway(name string) (Gateway, error) {
	name = strings.ToLower(name)

	switch name {
	case "bybit":
		return NewBybit(), nil
	case "paper":
		return NewPaper(0), nil
	default:
		return nil, fmt.Errorf("unsupported gateway: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли шлюз
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedGateways {
		if name == supported {
			return true
		}
	}
	return false
}
