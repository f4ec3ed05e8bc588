package models

import "time"

// ProxyConfig выданная пользователю конфигурация прокси: секрет-носитель
// плюс адрес и порт сервера. У пользователя может быть несколько конфигураций,
// по одной на активный сервер. При ротации весь набор заменяется атомарно.
type ProxyConfig struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"-"`
	ProxySecret   string    `json:"proxy_secret"`
	ServerAddress string    `json:"server_address"`
	Port          int       `json:"port"`
	CreatedAt     time.Time `json:"created_at"`
}
