package classifier

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/OOO-MoMo/Monitoring-System-sub000/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultWarningMarginFraction 默认预警带宽（量程的 10%）
const DefaultWarningMarginFraction = 0.1

// ErrUnparseable 值无法解析为有限数字
var ErrUnparseable = errors.New("value is not a finite number")

// Range 校准量程 [Min, Max]
type Range struct {
	Min float64
	Max float64
}

// Classify 按量程和预警带宽对读数分类
//   - 超出 [min, max] → CRITICAL
//   - 距任一端点不足 margin（= 量程 * fraction），且 range*(1-2f) > 0 → WARNING
//   - 其它 → NORMAL
func Classify(value, minValue, maxValue, warningMarginFraction float64) domain.Status {
	if value < minValue || value > maxValue {
		return domain.StatusCritical
	}

	rng := maxValue - minValue
	margin := rng * warningMarginFraction
	// 带宽重叠或量程退化时没有预警区
	if rng*(1-2*warningMarginFraction) > 0 {
		if value < minValue+margin || value > maxValue-margin {
			return domain.StatusWarning
		}
	}
	return domain.StatusNormal
}

// normalize 去空白，"," 统一替换为 "."
func normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrUnparseable
	}
	if strings.Count(s, ",") > 1 || (strings.Contains(s, ",") && strings.Contains(s, ".")) {
		return "", ErrUnparseable
	}
	return strings.Replace(s, ",", ".", 1), nil
}

// ParseDecimal 解析读数值，"12,5" 与 "12.5" 等价；NaN/Inf 视为无法解析
func ParseDecimal(raw string) (float64, error) {
	s, err := normalize(raw)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrUnparseable
	}
	return f, nil
}

// ParseRange 解析传感器的校准量程字符串
func ParseRange(minRaw, maxRaw string) (Range, error) {
	lo, err := parseBound(minRaw)
	if err != nil {
		return Range{}, fmt.Errorf("invalid min value %q: %w", minRaw, err)
	}
	hi, err := parseBound(maxRaw)
	if err != nil {
		return Range{}, fmt.Errorf("invalid max value %q: %w", maxRaw, err)
	}
	if lo.GreaterThan(hi) {
		return Range{}, fmt.Errorf("min value %s is greater than max value %s", lo, hi)
	}
	return Range{Min: lo.InexactFloat64(), Max: hi.InexactFloat64()}, nil
}

func parseBound(raw string) (decimal.Decimal, error) {
	s, err := normalize(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrUnparseable
	}
	return d, nil
}

// Evaluate 解析原始值并分类，无法解析时返回 UNDEFINED
func Evaluate(raw string, r Range, warningMarginFraction float64) domain.Status {
	v, err := ParseDecimal(raw)
	if err != nil {
		return domain.StatusUndefined
	}
	return Classify(v, r.Min, r.Max, warningMarginFraction)
}
