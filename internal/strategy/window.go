package strategy

import (
	"time"

	"zone_bot/internal/models"
)

// Window — ограниченная история цен одного инструмента.
// Ёмкость = период RSI, при переполнении выкидываем самую старую точку.
type Window struct {
	size   int
	points []models.PricePoint
}

func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{
		size:   size,
		points: make([]models.PricePoint, 0, size+1),
	}
}

// Push добавляет точку, если её время позже последней сохранённой.
// Повторный тик с тем же временем игнорируется. Возвращает true, если точка добавлена.
func (w *Window) Push(p models.PricePoint) bool {
	if n := len(w.points); n > 0 && !p.Time.After(w.points[n-1].Time) {
		return false
	}
	w.points = append(w.points, p)
	if len(w.points) > w.size {
		w.points = w.points[len(w.points)-w.size:]
	}
	return true
}

func (w *Window) Len() int { return len(w.points) }
func (w *Window) Cap() int { return w.size }
func (w *Window) Full() bool { return len(w.points) >= w.size }

// Last — последняя точка окна.
func (w *Window) Last() (models.PricePoint, bool) {
	if len(w.points) == 0 {
		return models.PricePoint{}, false
	}
	return w.points[len(w.points)-1], true
}

func (w *Window) Prices() []float64 {
	out := make([]float64, len(w.points))
	for i, p := range w.points {
		out[i] = p.Price
	}
	return out
}

func (w *Window) Points() []models.PricePoint {
	out := make([]models.PricePoint, len(w.points))
	copy(out, w.points)
	return out
}

func (w *Window) Reset() {
	w.points = w.points[:0]
}

// Snapshot раскладывает окно в параллельные срезы, как они хранятся в состоянии.
func (w *Window) Snapshot() (prices []float64, times []time.Time, volumes []float64) {
	prices = make([]float64, len(w.points))
	times = make([]time.Time, len(w.points))
	volumes = make([]float64, len(w.points))
	for i, p := range w.points {
		prices[i], times[i], volumes[i] = p.Price, p.Time, p.Volume
	}
	return prices, times, volumes
}

// Restore собирает окно обратно. Срезы разной длины обрезаются по самому короткому
// (prices обязателен, volumes может отсутствовать в старых записях).
func (w *Window) Restore(prices []float64, times []time.Time, volumes []float64) {
	w.Reset()
	n := len(prices)
	if len(times) < n {
		n = len(times)
	}
	for i := 0; i < n; i++ {
		p := models.PricePoint{Time: times[i], Price: prices[i]}
		if i < len(volumes) {
			p.Volume = volumes[i]
		}
		w.Push(p)
	}
}
