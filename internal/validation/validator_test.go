package validation

import (
	"errors"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructReportsFieldPath(t *testing.T) {
	amount := decimal.NewFromInt(100)

	t.Run("MissingRequiredPointer", func(t *testing.T) {
		err := Struct(domain.TransactionSignal{Type: domain.TxTransfer})
		require.Error(t, err)

		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "amount", ve.Field)
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("NestedField", func(t *testing.T) {
		err := Struct(domain.TransactionSignal{
			Amount:     &amount,
			Type:       domain.TxPayment,
			DeviceInfo: &domain.DeviceInfo{Platform: "ios"},
		})

		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "deviceInfo.deviceId", ve.Field)
	})

	t.Run("UnknownEnum", func(t *testing.T) {
		err := Struct(domain.TransactionSignal{Amount: &amount, Type: "teleport"})

		var ve *domain.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "type", ve.Field)
		assert.Contains(t, ve.Reason, "one of")
	})

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, Struct(domain.TransactionSignal{Amount: &amount, Type: domain.TxDeposit}))
	})
}
