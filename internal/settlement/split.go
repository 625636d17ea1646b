package settlement

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountScale 金额精度，与链上 18 位小数一致
const AmountScale = 18

// MerchantShareRatio 商户分成比例，全局统一，不随商户或调用变化
var MerchantShareRatio = decimal.RequireFromString("0.90")

// SplitTolerance 拆分校验允许的误差
var SplitTolerance = decimal.New(1, -AmountScale)

// Split 按固定比例拆分商户所得和平台手续费，两者之和精确等于总额
func Split(total decimal.Decimal) (merchantAmount, platformFees decimal.Decimal) {
	merchantAmount = total.Mul(MerchantShareRatio).Truncate(AmountScale)
	platformFees = total.Sub(merchantAmount)
	return merchantAmount, platformFees
}

// WeiToAmount 链上最小单位转换为账本金额
func WeiToAmount(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -AmountScale)
}

// withinTolerance 两个金额差值是否在允许误差内
func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(SplitTolerance)
}
