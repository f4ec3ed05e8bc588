package bot

import (
	"sync"

	"golang.org/x/time/rate"
)

// userLimiter ограничивает частоту обращений отдельно по каждому
// пользователю. Лимитер пользователя создается лениво при первом обращении.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newUserLimiter(limit rate.Limit, burst int) *userLimiter {
	return &userLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Allow сообщает, можно ли обработать обращение пользователя telegramID.
func (l *userLimiter) Allow(telegramID int64) bool {
	l.mu.Lock()
	lim, ok := l.limiters[telegramID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[telegramID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
