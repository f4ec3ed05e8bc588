package models

import "time"

// ProxyServer запись каталога прокси-серверов. Адрес уникален.
// Сервер никогда не удаляется физически, только выключается флагом IsActive,
// чтобы сохранить исторические ссылки из выданных конфигураций.
type ProxyServer struct {
	ID          int64     `json:"id"`
	Address     string    `json:"address"`
	Port        int       `json:"port"`
	Description string    `json:"description"`
	Capacity    int       `json:"capacity"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
