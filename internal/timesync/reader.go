package timesync

import "github.com/mmornati/homeplate/internal/rtc"

const (
	dateLayout = "15:04:05 Monday, January 02 2006"
	timeLayout = "15:04"
)

// Reader — локальное время для экрана. Пока RTC не выставлен, числовые
// значения равны -1.
type Reader struct {
	bridge *rtc.Bridge
	st     *State
}

func NewReader(bridge *rtc.Bridge, st *State) *Reader {
	return &Reader{bridge: bridge, st: st}
}

// FormattedDate — полная строка даты и времени.
func (r *Reader) FormattedDate() string {
	return r.bridge.Session().LocalTime().Format(dateLayout)
}

// FormattedTime — "ЧЧ:ММ".
func (r *Reader) FormattedTime() string {
	return r.bridge.Session().LocalTime().Format(timeLayout)
}

// DayOfWeek — 1..7. При mondayFirst понедельник = 1, воскресенье = 7,
// иначе воскресенье = 1.
func (r *Reader) DayOfWeek(mondayFirst bool) int {
	if !r.st.ExternalClockSet() {
		return -1
	}
	dow := int(r.bridge.Session().LocalTime().Weekday())
	if mondayFirst {
		if dow == 0 {
			return 7
		}
		return dow
	}
	return dow + 1
}

// Hour — час 0..23, либо 1..12 при h12.
func (r *Reader) Hour(h12 bool) int {
	if !r.st.ExternalClockSet() {
		return -1
	}
	h := r.bridge.Session().LocalTime().Hour()
	if h12 {
		h %= 12
		if h == 0 {
			h = 12
		}
	}
	return h
}

func (r *Reader) Minute() int {
	if !r.st.ExternalClockSet() {
		return -1
	}
	return r.bridge.Session().LocalTime().Minute()
}
