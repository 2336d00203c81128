// Package tz — одно правило часового пояса: пара переходов «летнее/стандартное время».
//
// Правило задаётся как «N-е воскресенье месяца в H часов по местному времени»
// (Week = 0 — последнее). Полноценная tzdata не нужна: устройство живёт в одном поясе.
package tz

import (
	"time"

	"github.com/mmornati/homeplate/internal/config"
)

const (
	Last = 0 // Week: последняя неделя месяца

	Sunday   = 1
	Monday   = 2
	Saturday = 7

	secsPerDay = 24 * 60 * 60
)

// Rule — момент перехода и смещение от UTC (в минутах), действующее после него.
type Rule struct {
	Abbrev string
	Week   int // 1..4, Last
	DOW    int // 1 = воскресенье .. 7 = суббота
	Month  int // 1..12
	Hour   int // 0..23, местное время
	Offset int // минуты от UTC
}

// Timezone — пара правил. Все методы чистые: переходы пересчитываются на каждый вызов,
// значение смещения меняется на границе DST прямо во время сессии.
type Timezone struct {
	dst Rule
	std Rule
}

// New создаёт пояс из правил летнего и стандартного времени.
func New(dst, std Rule) *Timezone {
	return &Timezone{dst: dst, std: std}
}

// Fixed — пояс без перехода на летнее время.
func Fixed(abbrev string, offsetMinutes int) *Timezone {
	r := Rule{Abbrev: abbrev, Week: 1, DOW: Sunday, Month: 1, Offset: offsetMinutes}
	return New(r, r)
}

// FromConfig переводит секцию timezone конфига в Timezone.
func FromConfig(c config.TimezoneConfig) *Timezone {
	conv := func(r config.RuleConfig) Rule {
		return Rule{Abbrev: r.Abbrev, Week: r.Week, DOW: r.DOW, Month: r.Month, Hour: r.Hour, Offset: r.Offset}
	}
	return New(conv(c.DST), conv(c.STD))
}

// ToLocal переводит UTC epoch в местное время (epoch, сдвинутый на смещение).
func (z *Timezone) ToLocal(utc int64) int64 {
	return utc + z.Offset(utc)
}

// Offset — смещение местного времени от UTC в секундах для момента utc. Может быть отрицательным.
func (z *Timezone) Offset(utc int64) int64 {
	if z.IsDST(utc) {
		return int64(z.dst.Offset) * 60
	}
	return int64(z.std.Offset) * 60
}

// Abbrev — аббревиатура действующего правила (CET/CEST).
func (z *Timezone) Abbrev(utc int64) string {
	if z.IsDST(utc) {
		return z.dst.Abbrev
	}
	return z.std.Abbrev
}

// IsDST возвращает true, если в момент utc действует летнее время.
func (z *Timezone) IsDST(utc int64) bool {
	if !z.observesDST() {
		return false
	}
	dstStart, stdStart := z.changesUTC(yearOf(utc))
	if stdStart > dstStart {
		// северное полушарие: лето внутри календарного года
		return utc >= dstStart && utc < stdStart
	}
	// южное полушарие: лето на стыке лет
	return !(utc >= stdStart && utc < dstStart)
}

// ToUTC переводит местное время в UTC. В неоднозначный час после перехода на зиму
// выбирается летнее время.
func (z *Timezone) ToUTC(local int64) int64 {
	if z.localIsDST(local) {
		return local - int64(z.dst.Offset)*60
	}
	return local - int64(z.std.Offset)*60
}

func (z *Timezone) localIsDST(local int64) bool {
	if !z.observesDST() {
		return false
	}
	yr := yearOf(local)
	dstLoc, stdLoc := transition(z.dst, yr), transition(z.std, yr)
	if stdLoc > dstLoc {
		return local >= dstLoc && local < stdLoc
	}
	return !(local >= stdLoc && local < dstLoc)
}

func (z *Timezone) observesDST() bool {
	return z.dst.Offset != z.std.Offset
}

// changesUTC — моменты начала DST и STD в UTC для года yr.
// Переход в DST задан по стандартному времени, обратный — по летнему.
func (z *Timezone) changesUTC(yr int) (dstStart, stdStart int64) {
	dstStart = transition(z.dst, yr) - int64(z.std.Offset)*60
	stdStart = transition(z.std, yr) - int64(z.dst.Offset)*60
	return dstStart, stdStart
}

// transition — местный момент перехода по правилу r в году yr.
// Для «последней недели» берётся первая неделя следующего месяца минус 7 дней.
func transition(r Rule, yr int) int64 {
	m, w := r.Month, r.Week
	if w == Last {
		m++
		if m > 12 {
			m = 1
			yr++
		}
		w = 1
	}
	t := time.Date(yr, time.Month(m), 1, r.Hour, 0, 0, 0, time.UTC)
	wd := int(t.Weekday()) + 1
	days := (r.DOW-wd+7)%7 + (w-1)*7
	at := t.Unix() + int64(days)*secsPerDay
	if r.Week == Last {
		at -= 7 * secsPerDay
	}
	return at
}

func yearOf(epoch int64) int {
	return time.Unix(epoch, 0).UTC().Year()
}
