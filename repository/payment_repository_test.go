package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/repository"
)

func TestPaymentFindByOrderIDForUpdate_LocksRow(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	orderID := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "order_id", "user_id", "method", "amount", "status", "created_at", "updated_at"}).
		AddRow(uuid.New(), orderID, uuid.New(), models.PaymentMethodGateway, 23000, models.PaymentPending, now, now)

	mock.ExpectQuery(`SELECT \* FROM "payments" WHERE order_id = \$1 .* FOR UPDATE`).
		WillReturnRows(rows)

	p, err := repo.FindByOrderIDForUpdate(context.Background(), orderID)
	assert.NoError(t, err)
	assert.Equal(t, orderID, p.OrderID)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Nil(t, p.Refund())
}

func TestPaymentFindExpirable_FiltersGatewayPending(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery(`SELECT .* FROM "payments" JOIN orders ON orders.id = payments.order_id ` +
		`WHERE \(?payments.method = \$1 AND payments.status = \$2 AND payments.created_at < \$3\)? ` +
		`AND orders.shipping_status IN \(\$4,\$5,\$6\) ORDER BY payments.created_at ASC LIMIT \$7`).
		WithArgs(models.PaymentMethodGateway, models.PaymentPending, cutoff,
			models.ShippingPending, models.ShippingProcessing, models.ShippingCancelled, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id"}).
			AddRow(uuid.New(), uuid.New()).
			AddRow(uuid.New(), uuid.New()))

	payments, err := repo.FindExpirable(context.Background(), cutoff, 50)
	assert.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestPaymentCreate_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	payment := &models.Payment{
		ID:      uuid.New(),
		OrderID: uuid.New(),
		UserID:  uuid.New(),
		Method:  models.PaymentMethodCOD,
		Amount:  23000,
		Status:  models.PaymentPending,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payments"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(payment.ID))
	mock.ExpectCommit()

	assert.NoError(t, repo.Create(context.Background(), payment))
}

func TestOrderDelete_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormOrderRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "orders"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), uuid.New())
	assert.Error(t, err)
}
