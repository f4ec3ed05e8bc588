// Package authz содержит явную проверку административных полномочий.
//
// Проверка вызывается в начале каждой административной операции и возвращает
// результат явно, вместо скрытой обертки вокруг обработчика.
package authz

import "slices"

// IsAdmin сообщает, входит ли telegramID в список операторов из конфигурации.
func IsAdmin(adminIDs []int64, telegramID int64) bool {
	return slices.Contains(adminIDs, telegramID)
}
