// Package secret генерирует секреты для прокси-конфигураций.
//
// Секрет — токен-носитель: его предъявление дает доступ к серверу, поэтому
// источником случайности служит только crypto/rand. Длина и алфавит —
// константы политики, не параметры вызова.
package secret

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// Length длина генерируемого секрета в символах.
	Length = 32
)

// New возвращает новый случайный секрет из Length символов алфавита [a-zA-Z0-9].
// Исчерпание системного источника случайности — фатальная ситуация,
// восстановление невозможно, поэтому паника.
func New() string {
	buf := make([]byte, Length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("secret: random source unavailable: %v", err))
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf)
}
