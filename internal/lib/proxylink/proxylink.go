// Package proxylink строит клиентские ссылки подключения к MTProto-прокси
// по выданной конфигурации.
package proxylink

import (
	"fmt"
	"net/url"

	"github.com/hrustalq/tg-proxy/internal/models"
)

// Links набор ссылок подключения для одной конфигурации.
type Links struct {
	TG  string // ссылка tg://proxy, открывается клиентом напрямую
	TMe string // веб-ссылка https://t.me/proxy
	QR  string // ссылка на генератор QR-кода для TMe
}

// Build возвращает ссылки подключения для конфигурации cfg.
func Build(cfg models.ProxyConfig) Links {
	query := url.Values{}
	query.Set("server", cfg.ServerAddress)
	query.Set("port", fmt.Sprintf("%d", cfg.Port))
	query.Set("secret", cfg.ProxySecret)
	encoded := query.Encode()

	tme := "https://t.me/proxy?" + encoded
	return Links{
		TG:  "tg://proxy?" + encoded,
		TMe: tme,
		QR:  "https://api.qrserver.com/v1/create-qr-code/?data=" + url.QueryEscape(tme) + "&size=300x300",
	}
}
