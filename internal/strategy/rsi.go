package strategy

import "errors"

var ErrInsufficientData = errors.New("insufficient data for indicator")

// RSI считает индекс относительной силы по последним period наблюдениям.
//
// avgGain/avgLoss — суммы положительных/отрицательных приращений, делённые на period.
// Если потерь нет (в том числе плоская цена) — RSI = 100.
func RSI(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period {
		return 0, ErrInsufficientData
	}

	recent := prices[len(prices)-period:]
	var gains, losses float64
	for i := 1; i < len(recent); i++ {
		d := recent[i] - recent[i-1]
		if d > 0 {
			gains += d
		} else {
			losses -= d
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
