package circuitbreaker

import "time"

// maxWindow caps the number of one-second slots a window can track.
const maxWindow = 60

// slot holds weighted error and request counts for one second.
type slot struct {
	errs  float64
	total int
}

// window is a ring of one-second slots. The zero value is unusable; build
// it with newWindow.
type window struct {
	slots [maxWindow]slot
	size  int
	head  int   // slot for headSec
	headS int64 // unix second of head, 0 before first record
}

func newWindow(seconds int) window {
	if seconds <= 0 || seconds > maxWindow {
		seconds = maxWindow
	}
	return window{size: seconds}
}

// roll moves head to the slot for sec, zeroing every slot it skips over.
func (w *window) roll(sec int64) {
	if w.headS == 0 {
		w.headS = sec
		return
	}
	gap := sec - w.headS
	if gap <= 0 {
		return
	}
	stale := int(min(gap, int64(w.size)))
	for i := 1; i <= stale; i++ {
		w.slots[(w.head+i)%w.size] = slot{}
	}
	w.head = (w.head + int(gap%int64(w.size))) % w.size
	w.headS = sec
}

// add records one outcome. A weight of 0 is a success.
func (w *window) add(weight float64, now time.Time) {
	w.roll(now.Unix())
	w.slots[w.head].total++
	w.slots[w.head].errs += weight
}

// rate returns the weighted error rate and the sample count in the window.
func (w *window) rate(now time.Time) (float64, int) {
	w.roll(now.Unix())
	var errs float64
	var total int
	for i := range w.size {
		errs += w.slots[i].errs
		total += w.slots[i].total
	}
	if total == 0 {
		return 0, 0
	}
	return errs / float64(total), total
}

func (w *window) reset() {
	*w = newWindow(w.size)
}
