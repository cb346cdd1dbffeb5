package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ledger-inventario/internal/application/dto"
	applend "github.com/jhoicas/ledger-inventario/internal/application/ledger"
	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	"github.com/jhoicas/ledger-inventario/pkg/logger"
)

const (
	testInstitution = "inst-1"
	testUser        = "user-1"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	store     *fakeStore
	items     *fakeItemRepo
	warehouse *fakeWarehouseRepo
	alerts    *fakeAlertEvaluator
	uc        *applend.CommandUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     newFakeStore(),
		items:     &fakeItemRepo{items: make(map[string]*entity.Item)},
		warehouse: &fakeWarehouseRepo{warehouses: make(map[string]*entity.Warehouse)},
		alerts:    &fakeAlertEvaluator{},
	}
	env.warehouse.warehouses["wh-1"] = &entity.Warehouse{ID: "wh-1", InstitutionID: testInstitution, Name: "Principal"}
	env.warehouse.warehouses["wh-2"] = &entity.Warehouse{ID: "wh-2", InstitutionID: testInstitution, Name: "Sucursal"}

	log := logger.New(logger.Config{Env: "production", Level: "error"})
	env.uc = applend.NewCommandUseCase(
		&fakeTxRunner{s: env.store},
		env.items,
		env.warehouse,
		env.alerts,
		applend.Config{LockTimeout: time.Second, MaxRetries: 2, RetryBackoff: time.Millisecond},
		log,
	)
	return env
}

func (env *testEnv) addItem(id string, mutate func(*entity.Item)) *entity.Item {
	item := &entity.Item{
		ID:              id,
		InstitutionID:   testInstitution,
		SKU:             "SKU-" + id,
		Name:            "Item " + id,
		ValuationMethod: entity.ValuationWeightedAverage,
	}
	if mutate != nil {
		mutate(item)
	}
	env.items.items[id] = item
	return item
}

func (env *testEnv) projection(t *testing.T, itemID, warehouseID string) entity.InventoryProjection {
	t.Helper()
	key := entity.AggregateKey{InstitutionID: testInstitution, ItemID: itemID, WarehouseID: warehouseID}
	p, ok := env.store.projections[key]
	require.True(t, ok, "la proyección del agregado debería existir")
	return p
}

func (env *testEnv) eventos(itemID, warehouseID string) []entity.Event {
	key := entity.AggregateKey{InstitutionID: testInstitution, ItemID: itemID, WarehouseID: warehouseID}
	return env.store.events[key]
}

func recibir(itemID, warehouseID, idemKey, qty, cost string) dto.ReceiveStockRequest {
	return dto.ReceiveStockRequest{
		ItemID:         itemID,
		WarehouseID:    warehouseID,
		Quantity:       d(qty),
		UnitCost:       d(cost),
		IdempotencyKey: idemKey,
	}
}

func TestReceive_ActualizaProyeccionYLog(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)

	resp, err := env.uc.Receive(context.Background(), testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "100", "10.50"))
	require.NoError(t, err)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, int64(1), resp.SequenceNumber)

	p := env.projection(t, "item-1", "wh-1")
	assert.True(t, p.QuantityOnHand.Equal(d("100")))
	assert.True(t, p.QuantityAvailable.Equal(d("100")))
	assert.True(t, p.AverageCost.Equal(d("10.50")))
	assert.True(t, p.TotalValue.Equal(d("1050")))
	assert.Equal(t, int64(1), p.Version)

	evs := env.eventos("item-1", "wh-1")
	require.Len(t, evs, 1)
	assert.Equal(t, entity.EventStockReceived, evs[0].Type)
	assert.Equal(t, testUser, evs[0].RecordedBy)

	require.Len(t, env.alerts.evaluated, 1)
}

func TestReceive_ReenvioIdempotente(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "100", "10"))
	require.NoError(t, err)

	// El reenvío con la misma clave es éxito-sin-efecto, no error
	resp, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "100", "10"))
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)

	assert.Len(t, env.eventos("item-1", "wh-1"), 1)
	p := env.projection(t, "item-1", "wh-1")
	assert.True(t, p.QuantityOnHand.Equal(d("100")))
}

func TestReceive_ValidaEntrada(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	env.addItem("item-ajeno", func(i *entity.Item) { i.InstitutionID = "inst-otra" })
	env.addItem("item-borrado", func(i *entity.Item) {
		borrado := time.Now()
		i.DeletedAt = &borrado
	})
	ctx := context.Background()

	casos := []struct {
		nombre string
		in     dto.ReceiveStockRequest
		want   error
	}{
		{"sin clave de idempotencia", dto.ReceiveStockRequest{ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("1"), UnitCost: d("1")}, domain.ErrInvalidInput},
		{"cantidad cero", recibir("item-1", "wh-1", "K1", "0", "1"), domain.ErrInvalidInput},
		{"costo negativo", recibir("item-1", "wh-1", "K2", "1", "-1"), domain.ErrInvalidInput},
		{"item inexistente", recibir("item-x", "wh-1", "K3", "1", "1"), domain.ErrNotFound},
		{"item de otra institución", recibir("item-ajeno", "wh-1", "K4", "1", "1"), domain.ErrForbidden},
		{"item tombstoneado", recibir("item-borrado", "wh-1", "K5", "1", "1"), domain.ErrNotFound},
		{"bodega inexistente", recibir("item-1", "wh-x", "K6", "1", "1"), domain.ErrNotFound},
	}
	for _, c := range casos {
		t.Run(c.nombre, func(t *testing.T) {
			_, err := env.uc.Receive(ctx, testInstitution, testUser, c.in)
			assert.ErrorIs(t, err, c.want)
		})
	}
	assert.Empty(t, env.eventos("item-1", "wh-1"))
}

func TestReceive_ItemPorLoteRequiereNumeroDeLote(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-lote", func(i *entity.Item) { i.TrackBatches = true })
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-lote", "wh-1", "GRN-1", "10", "5"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in := recibir("item-lote", "wh-1", "GRN-1", "10", "5")
	in.BatchNumber = "L-001"
	_, err = env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	require.Len(t, env.store.batches, 1)
	b := env.store.batches[0]
	assert.Equal(t, "L-001", b.BatchNumber)
	assert.True(t, b.QuantityReceived.Equal(d("10")))
	assert.True(t, b.QuantityRemaining.Equal(d("10")))
	assert.True(t, b.UnitCost.Equal(d("5")))
	assert.Equal(t, entity.BatchActive, b.Status)

	// Recepción parcial del mismo lote: suma sobre el existente
	in2 := recibir("item-lote", "wh-1", "GRN-2", "4", "5")
	in2.BatchNumber = "L-001"
	_, err = env.uc.Receive(ctx, testInstitution, testUser, in2)
	require.NoError(t, err)
	require.Len(t, env.store.batches, 1)
	assert.True(t, env.store.batches[0].QuantityRemaining.Equal(d("14")))
}

func TestReceive_ItemConVencimientoExigeFecha(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-perecedero", func(i *entity.Item) {
		i.TrackBatches = true
		i.HasExpiry = true
	})

	in := recibir("item-perecedero", "wh-1", "GRN-1", "10", "5")
	in.BatchNumber = "L-001"
	_, err := env.uc.Receive(context.Background(), testInstitution, testUser, in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, env.eventos("item-perecedero", "wh-1"), "el evento debe rodar atrás con el lote")
}

func TestReceive_ItemSerializadoExigeSeriales(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-serial", func(i *entity.Item) { i.TrackSerials = true })
	ctx := context.Background()

	sinSeriales := recibir("item-serial", "wh-1", "GRN-1", "2", "100")
	_, err := env.uc.Receive(ctx, testInstitution, testUser, sinSeriales)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	desbalanceado := recibir("item-serial", "wh-1", "GRN-2", "2", "100")
	desbalanceado.SerialNumbers = []string{"SN-1"}
	_, err = env.uc.Receive(ctx, testInstitution, testUser, desbalanceado)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	fraccion := recibir("item-serial", "wh-1", "GRN-3", "1.5", "100")
	fraccion.SerialNumbers = []string{"SN-1"}
	_, err = env.uc.Receive(ctx, testInstitution, testUser, fraccion)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	ok := recibir("item-serial", "wh-1", "GRN-4", "2", "100")
	ok.SerialNumbers = []string{"SN-1", "SN-2"}
	_, err = env.uc.Receive(ctx, testInstitution, testUser, ok)
	require.NoError(t, err)

	require.Len(t, env.store.serials, 2)
	for _, s := range env.store.serials {
		assert.Equal(t, entity.SerialAvailable, s.Status)
		assert.Equal(t, "wh-1", s.WarehouseID)
	}
}

func TestReceive_ConflictoTransitorioSeReintenta(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)

	env.store.failUpdates = 1
	resp, err := env.uc.Receive(context.Background(), testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "10", "1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.SequenceNumber)
	assert.Len(t, env.eventos("item-1", "wh-1"), 1)
}

func TestReceive_ReintentosAgotados_ErrConflict(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)

	// intento inicial + MaxRetries reintentos, todos en conflicto
	env.store.failUpdates = 3
	_, err := env.uc.Receive(context.Background(), testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "10", "1"))
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, env.eventos("item-1", "wh-1"), "ningún evento debe sobrevivir a los rollbacks")
}

func TestAdjust_RequiereMotivo(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)

	_, err := env.uc.Adjust(context.Background(), testInstitution, testUser, dto.AdjustStockRequest{
		ItemID:         "item-1",
		WarehouseID:    "wh-1",
		Quantity:       d("1"),
		Direction:      entity.AdjustmentDecrease,
		IdempotencyKey: "ADJ-1",
	})
	assert.ErrorIs(t, err, domain.ErrMissingReason)
}

func TestAdjust_DireccionInvalida(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)

	_, err := env.uc.Adjust(context.Background(), testInstitution, testUser, dto.AdjustStockRequest{
		ItemID:         "item-1",
		WarehouseID:    "wh-1",
		Quantity:       d("1"),
		Direction:      "sideways",
		Reason:         "conteo",
		IdempotencyKey: "ADJ-1",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAdjust_DecrementoConsumeLotes(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-lote", func(i *entity.Item) { i.TrackBatches = true })
	ctx := context.Background()

	in := recibir("item-lote", "wh-1", "GRN-1", "10", "5")
	in.BatchNumber = "L-001"
	_, err := env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	_, err = env.uc.Adjust(ctx, testInstitution, testUser, dto.AdjustStockRequest{
		ItemID:         "item-lote",
		WarehouseID:    "wh-1",
		Quantity:       d("4"),
		Direction:      entity.AdjustmentDecrease,
		Reason:         "merma",
		IdempotencyKey: "ADJ-1",
	})
	require.NoError(t, err)

	p := env.projection(t, "item-lote", "wh-1")
	assert.True(t, p.QuantityOnHand.Equal(d("6")))
	assert.True(t, env.store.batches[0].QuantityRemaining.Equal(d("6")))
}

func TestAdjust_LotesInsuficientes_RuedaAtras(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-lote", func(i *entity.Item) { i.TrackBatches = true })
	ctx := context.Background()

	in := recibir("item-lote", "wh-1", "GRN-1", "5", "5")
	in.BatchNumber = "L-001"
	_, err := env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	// Lote retirado de circulación: hay on-hand pero nada consumible
	require.NoError(t, (&fakeBatchRepo{s: env.store}).UpdateStatus(ctx, env.store.batches[0].ID, entity.BatchDamaged))

	_, err = env.uc.Adjust(ctx, testInstitution, testUser, dto.AdjustStockRequest{
		ItemID:         "item-lote",
		WarehouseID:    "wh-1",
		Quantity:       d("2"),
		Direction:      entity.AdjustmentDecrease,
		Reason:         "merma",
		IdempotencyKey: "ADJ-1",
	})
	assert.ErrorIs(t, err, domain.ErrBatchExhausted)

	p := env.projection(t, "item-lote", "wh-1")
	assert.True(t, p.QuantityOnHand.Equal(d("5")), "el ajuste fallido no debe tocar la proyección")
	assert.Len(t, env.eventos("item-lote", "wh-1"), 1)
}

func TestMarkBatch_RetiraElLoteYDescargaElRestante(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-lote", func(i *entity.Item) { i.TrackBatches = true })
	ctx := context.Background()

	in := recibir("item-lote", "wh-1", "GRN-1", "10", "5")
	in.BatchNumber = "L-001"
	_, err := env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	resp, err := env.uc.MarkBatch(ctx, testInstitution, testUser, dto.MarkBatchRequest{
		ItemID:         "item-lote",
		WarehouseID:    "wh-1",
		BatchNumber:    "L-001",
		Status:         entity.BatchRecalled,
		IdempotencyKey: "RCL-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.SequenceNumber)

	b := env.store.batches[0]
	assert.Equal(t, entity.BatchRecalled, b.Status)
	assert.True(t, b.QuantityRemaining.IsZero())

	p := env.projection(t, "item-lote", "wh-1")
	assert.True(t, p.QuantityOnHand.IsZero())

	evs := env.eventos("item-lote", "wh-1")
	require.Len(t, evs, 2)
	assert.Equal(t, entity.EventStockAdjusted, evs[1].Type)
	assert.Equal(t, "lote recalled", evs[1].Payload.Reason)
	assert.Equal(t, "L-001", evs[1].Payload.BatchNumber)

	// Reenvío idempotente
	resp, err = env.uc.MarkBatch(ctx, testInstitution, testUser, dto.MarkBatchRequest{
		ItemID: "item-lote", WarehouseID: "wh-1", BatchNumber: "L-001",
		Status: entity.BatchRecalled, IdempotencyKey: "RCL-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Duplicate)
}

func TestMarkBatch_Valida(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-lote", func(i *entity.Item) { i.TrackBatches = true })
	env.addItem("item-suelto", nil)
	ctx := context.Background()

	_, err := env.uc.MarkBatch(ctx, testInstitution, testUser, dto.MarkBatchRequest{
		ItemID: "item-lote", WarehouseID: "wh-1", BatchNumber: "L-X",
		Status: "perdido", IdempotencyKey: "K1",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// Item sin trazabilidad por lote
	_, err = env.uc.MarkBatch(ctx, testInstitution, testUser, dto.MarkBatchRequest{
		ItemID: "item-suelto", WarehouseID: "wh-1", BatchNumber: "L-X",
		Status: entity.BatchExpired, IdempotencyKey: "K2",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// Lote inexistente
	_, err = env.uc.MarkBatch(ctx, testInstitution, testUser, dto.MarkBatchRequest{
		ItemID: "item-lote", WarehouseID: "wh-1", BatchNumber: "L-X",
		Status: entity.BatchExpired, IdempotencyKey: "K3",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdjust_SerialDanado(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-serial", func(i *entity.Item) { i.TrackSerials = true })
	ctx := context.Background()

	in := recibir("item-serial", "wh-1", "GRN-1", "3", "100")
	in.SerialNumbers = []string{"SN-1", "SN-2", "SN-3"}
	_, err := env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	_, err = env.uc.Adjust(ctx, testInstitution, testUser, dto.AdjustStockRequest{
		ItemID:         "item-serial",
		WarehouseID:    "wh-1",
		Quantity:       d("1"),
		Direction:      entity.AdjustmentDecrease,
		Reason:         "daño en bodega",
		IdempotencyKey: "ADJ-1",
		SerialNumbers:  []string{"SN-2"},
	})
	require.NoError(t, err)

	s, err := (&fakeSerialRepo{s: env.store}).GetBySerialNumber(ctx, testInstitution, "item-serial", "SN-2")
	require.NoError(t, err)
	assert.Equal(t, entity.SerialDamaged, s.Status)
}

func TestAdjust_SerialesDebenCoincidirConLaCantidad(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-serial", func(i *entity.Item) { i.TrackSerials = true })
	ctx := context.Background()

	in := recibir("item-serial", "wh-1", "GRN-1", "3", "100")
	in.SerialNumbers = []string{"SN-1", "SN-2", "SN-3"}
	_, err := env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	// Lista de seriales más corta que la cantidad: se rechaza antes de tocar
	// nada, el sub-ledger de seriales no puede derivar de la proyección.
	_, err = env.uc.Adjust(ctx, testInstitution, testUser, dto.AdjustStockRequest{
		ItemID:         "item-serial",
		WarehouseID:    "wh-1",
		Quantity:       d("3"),
		Direction:      entity.AdjustmentDecrease,
		Reason:         "daño en bodega",
		IdempotencyKey: "ADJ-1",
		SerialNumbers:  []string{"SN-1"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// Cantidad fraccionaria en item serializado
	_, err = env.uc.Adjust(ctx, testInstitution, testUser, dto.AdjustStockRequest{
		ItemID:         "item-serial",
		WarehouseID:    "wh-1",
		Quantity:       d("1.5"),
		Direction:      entity.AdjustmentDecrease,
		Reason:         "daño en bodega",
		IdempotencyKey: "ADJ-2",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	p := env.projection(t, "item-serial", "wh-1")
	assert.True(t, p.QuantityOnHand.Equal(d("3")))
	require.Len(t, env.eventos("item-serial", "wh-1"), 1)

	s, err := (&fakeSerialRepo{s: env.store}).GetBySerialNumber(ctx, testInstitution, "item-serial", "SN-1")
	require.NoError(t, err)
	assert.Equal(t, entity.SerialAvailable, s.Status)
}

func TestReserve_CicloReservaDespacho(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "100", "10"))
	require.NoError(t, err)

	_, err = env.uc.Reserve(ctx, testInstitution, testUser, dto.ReserveStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("30"), OrderRef: "SO-1", IdempotencyKey: "RES-1",
	})
	require.NoError(t, err)

	p := env.projection(t, "item-1", "wh-1")
	assert.True(t, p.QuantityAvailable.Equal(d("70")))
	assert.True(t, p.QuantityReserved.Equal(d("30")))
	require.Len(t, env.store.reservations, 1)
	assert.Equal(t, entity.ReservationReserved, env.store.reservations[0].Status)

	// Segunda reserva activa para la misma orden: rechazada
	_, err = env.uc.Reserve(ctx, testInstitution, testUser, dto.ReserveStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("5"), OrderRef: "SO-1", IdempotencyKey: "RES-2",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	// Liberación parcial
	_, err = env.uc.Release(ctx, testInstitution, testUser, dto.ReleaseReservationRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("10"), OrderRef: "SO-1", IdempotencyKey: "REL-1",
	})
	require.NoError(t, err)
	p = env.projection(t, "item-1", "wh-1")
	assert.True(t, p.QuantityAvailable.Equal(d("80")))
	assert.True(t, p.QuantityReserved.Equal(d("20")))
	assert.True(t, env.store.reservations[0].Quantity.Equal(d("20")))
	assert.Equal(t, entity.ReservationReserved, env.store.reservations[0].Status)

	// Despacho total de lo que queda reservado
	_, err = env.uc.Ship(ctx, testInstitution, testUser, dto.ShipStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("20"), OrderRef: "SO-1", IdempotencyKey: "SHP-1",
	})
	require.NoError(t, err)
	p = env.projection(t, "item-1", "wh-1")
	assert.True(t, p.QuantityOnHand.Equal(d("80")))
	assert.True(t, p.QuantityReserved.Equal(d("0")))
	assert.Equal(t, entity.ReservationShipped, env.store.reservations[0].Status)
	assert.True(t, env.store.reservations[0].Quantity.Equal(d("0")))
}

func TestReserve_SobreDisponible_RuedaAtras(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "10", "1"))
	require.NoError(t, err)

	_, err = env.uc.Reserve(ctx, testInstitution, testUser, dto.ReserveStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("11"), OrderRef: "SO-1", IdempotencyKey: "RES-1",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientAvailableStock)
	assert.Len(t, env.eventos("item-1", "wh-1"), 1)
	assert.Empty(t, env.store.reservations)
}

func TestShip_SinReservaActiva(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "10", "1"))
	require.NoError(t, err)

	_, err = env.uc.Ship(ctx, testInstitution, testUser, dto.ShipStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("5"), OrderRef: "SO-X", IdempotencyKey: "SHP-1",
	})
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestShip_MasDeLoReservado(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "10", "1"))
	require.NoError(t, err)
	_, err = env.uc.Reserve(ctx, testInstitution, testUser, dto.ReserveStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("5"), OrderRef: "SO-1", IdempotencyKey: "RES-1",
	})
	require.NoError(t, err)

	_, err = env.uc.Ship(ctx, testInstitution, testUser, dto.ShipStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("6"), OrderRef: "SO-1", IdempotencyKey: "SHP-1",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidReservationState)
}

func TestTransfer_ConservaCantidadYValor(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "100", "10"))
	require.NoError(t, err)

	resp, err := env.uc.Transfer(ctx, testInstitution, testUser, dto.TransferStockRequest{
		ItemID: "item-1", FromWarehouseID: "wh-1", ToWarehouseID: "wh-2", Quantity: d("40"), IdempotencyKey: "TRF-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.TransferID)

	src := env.projection(t, "item-1", "wh-1")
	dst := env.projection(t, "item-1", "wh-2")
	assert.True(t, src.QuantityOnHand.Equal(d("60")))
	assert.True(t, dst.QuantityOnHand.Equal(d("40")))
	assert.True(t, src.TotalValue.Add(dst.TotalValue).Equal(d("1000")), "el valor total del sistema no cambia")

	// Un evento out en el origen y un in en el destino, correlacionados
	evsSrc := env.eventos("item-1", "wh-1")
	evsDst := env.eventos("item-1", "wh-2")
	require.Len(t, evsSrc, 2)
	require.Len(t, evsDst, 1)
	assert.Equal(t, entity.EventStockTransferredOut, evsSrc[1].Type)
	assert.Equal(t, entity.EventStockTransferredIn, evsDst[0].Type)
	assert.Equal(t, resp.TransferID, evsSrc[1].Payload.TransferID)
	assert.Equal(t, resp.TransferID, evsDst[0].Payload.TransferID)
}

func TestTransfer_MismaBodega(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)

	_, err := env.uc.Transfer(context.Background(), testInstitution, testUser, dto.TransferStockRequest{
		ItemID: "item-1", FromWarehouseID: "wh-1", ToWarehouseID: "wh-1", Quantity: d("1"), IdempotencyKey: "TRF-1",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTransfer_FIFOUsaElCostoDeLasCapasConsumidas(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-fifo", func(i *entity.Item) { i.ValuationMethod = entity.ValuationFIFO })
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-fifo", "wh-1", "GRN-1", "10", "10"))
	require.NoError(t, err)
	_, err = env.uc.Receive(ctx, testInstitution, testUser, recibir("item-fifo", "wh-1", "GRN-2", "10", "20"))
	require.NoError(t, err)

	// 16 unidades: 10@10 + 6@20 = 220, costo 13.75
	_, err = env.uc.Transfer(ctx, testInstitution, testUser, dto.TransferStockRequest{
		ItemID: "item-fifo", FromWarehouseID: "wh-1", ToWarehouseID: "wh-2", Quantity: d("16"), IdempotencyKey: "TRF-1",
	})
	require.NoError(t, err)

	src := env.projection(t, "item-fifo", "wh-1")
	dst := env.projection(t, "item-fifo", "wh-2")
	assert.True(t, src.QuantityOnHand.Equal(d("4")))
	assert.True(t, src.TotalValue.Equal(d("80")), "quedan 4@20 en el origen")
	assert.True(t, src.LayersTotal().Equal(d("4")))
	assert.True(t, dst.QuantityOnHand.Equal(d("16")))
	assert.True(t, dst.AverageCost.Equal(d("13.75")))
	assert.True(t, dst.TotalValue.Equal(d("220")))
}

func TestTransfer_EspejaLosLotesEnElDestino(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-lote", func(i *entity.Item) { i.TrackBatches = true })
	ctx := context.Background()

	in := recibir("item-lote", "wh-1", "GRN-1", "10", "5")
	in.BatchNumber = "L-001"
	_, err := env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	_, err = env.uc.Transfer(ctx, testInstitution, testUser, dto.TransferStockRequest{
		ItemID: "item-lote", FromWarehouseID: "wh-1", ToWarehouseID: "wh-2", Quantity: d("4"), IdempotencyKey: "TRF-1",
	})
	require.NoError(t, err)

	srcKey := entity.AggregateKey{InstitutionID: testInstitution, ItemID: "item-lote", WarehouseID: "wh-1"}
	dstKey := entity.AggregateKey{InstitutionID: testInstitution, ItemID: "item-lote", WarehouseID: "wh-2"}
	repo := &fakeBatchRepo{s: env.store}

	origen, err := repo.GetByNumber(ctx, srcKey, "L-001")
	require.NoError(t, err)
	assert.True(t, origen.QuantityRemaining.Equal(d("6")))

	destino, err := repo.GetByNumber(ctx, dstKey, "L-001")
	require.NoError(t, err)
	require.NotNil(t, destino, "el lote debe existir en la bodega destino")
	assert.True(t, destino.QuantityRemaining.Equal(d("4")))
	assert.True(t, destino.UnitCost.Equal(d("5")))
}

func TestTransfer_SerialesCambianDeBodega(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-serial", func(i *entity.Item) { i.TrackSerials = true })
	ctx := context.Background()

	in := recibir("item-serial", "wh-1", "GRN-1", "3", "100")
	in.SerialNumbers = []string{"SN-1", "SN-2", "SN-3"}
	_, err := env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	_, err = env.uc.Transfer(ctx, testInstitution, testUser, dto.TransferStockRequest{
		ItemID: "item-serial", FromWarehouseID: "wh-1", ToWarehouseID: "wh-2", Quantity: d("2"), IdempotencyKey: "TRF-1",
	})
	require.NoError(t, err)

	movidos := 0
	for _, s := range env.store.serials {
		if s.WarehouseID == "wh-2" {
			movidos++
			assert.Equal(t, entity.SerialAvailable, s.Status)
		}
	}
	assert.Equal(t, 2, movidos)
}

func TestTransfer_CantidadFraccionariaEnItemSerializado(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-serial", func(i *entity.Item) { i.TrackSerials = true })
	ctx := context.Background()

	in := recibir("item-serial", "wh-1", "GRN-1", "3", "100")
	in.SerialNumbers = []string{"SN-1", "SN-2", "SN-3"}
	_, err := env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	// Un serial no se parte: la cantidad debe ser entera.
	_, err = env.uc.Transfer(ctx, testInstitution, testUser, dto.TransferStockRequest{
		ItemID: "item-serial", FromWarehouseID: "wh-1", ToWarehouseID: "wh-2", Quantity: d("1.5"), IdempotencyKey: "TRF-1",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	for _, s := range env.store.serials {
		assert.Equal(t, "wh-1", s.WarehouseID)
	}
	p := env.projection(t, "item-serial", "wh-1")
	assert.True(t, p.QuantityOnHand.Equal(d("3")))
}

func TestReserve_SerialesExplicitos(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-serial", func(i *entity.Item) { i.TrackSerials = true })
	ctx := context.Background()

	in := recibir("item-serial", "wh-1", "GRN-1", "3", "100")
	in.SerialNumbers = []string{"SN-1", "SN-2", "SN-3"}
	_, err := env.uc.Receive(ctx, testInstitution, testUser, in)
	require.NoError(t, err)

	_, err = env.uc.Reserve(ctx, testInstitution, testUser, dto.ReserveStockRequest{
		ItemID: "item-serial", WarehouseID: "wh-1", Quantity: d("2"), OrderRef: "SO-1",
		IdempotencyKey: "RES-1", SerialNumbers: []string{"SN-1", "SN-3"},
	})
	require.NoError(t, err)

	repo := &fakeSerialRepo{s: env.store}
	for sn, want := range map[string]string{
		"SN-1": entity.SerialReserved,
		"SN-2": entity.SerialAvailable,
		"SN-3": entity.SerialReserved,
	} {
		s, err := repo.GetBySerialNumber(ctx, testInstitution, "item-serial", sn)
		require.NoError(t, err)
		assert.Equal(t, want, s.Status, sn)
	}

	// Reservar un serial ya reservado falla y rueda atrás
	_, err = env.uc.Reserve(ctx, testInstitution, testUser, dto.ReserveStockRequest{
		ItemID: "item-serial", WarehouseID: "wh-1", Quantity: d("1"), OrderRef: "SO-2",
		IdempotencyKey: "RES-2", SerialNumbers: []string{"SN-1"},
	})
	assert.ErrorIs(t, err, domain.ErrSerialUnavailable)

	// El despacho pasa los reservados a vendidos
	_, err = env.uc.Ship(ctx, testInstitution, testUser, dto.ShipStockRequest{
		ItemID: "item-serial", WarehouseID: "wh-1", Quantity: d("2"), OrderRef: "SO-1", IdempotencyKey: "SHP-1",
	})
	require.NoError(t, err)
	for _, sn := range []string{"SN-1", "SN-3"} {
		s, err := repo.GetBySerialNumber(ctx, testInstitution, "item-serial", sn)
		require.NoError(t, err)
		assert.Equal(t, entity.SerialSold, s.Status, sn)
	}
}

// ── lecturas ─────────────────────────────────────────────────────────────────

func newQueryUC(env *testEnv) *applend.QueryUseCase {
	return applend.NewQueryUseCase(
		&fakeEventRepo{s: env.store},
		&fakeProjectionRepo{s: env.store},
		env.items,
		&fakeBatchRepo{s: env.store},
		&fakeSerialRepo{s: env.store},
		&fakeReservationRepo{s: env.store},
	)
}

func TestQuery_ProyeccionEnCeroParaParSinEventos(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)

	p, err := newQueryUC(env).GetProjection(context.Background(), testInstitution, "item-1", "wh-1")
	require.NoError(t, err)
	assert.True(t, p.QuantityOnHand.IsZero())
	assert.Equal(t, int64(0), p.LastEventSequence)
}

func TestQuery_VerifyDetectaDeriva(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()
	qry := newQueryUC(env)

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "100", "10"))
	require.NoError(t, err)
	_, err = env.uc.Reserve(ctx, testInstitution, testUser, dto.ReserveStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("30"), OrderRef: "SO-1", IdempotencyKey: "RES-1",
	})
	require.NoError(t, err)

	out, err := qry.Verify(ctx, testInstitution, "item-1", "wh-1")
	require.NoError(t, err)
	assert.True(t, out.Consistent)
	assert.Empty(t, out.Drift)

	// Corromper la proyección viva a mano: el replay debe delatarla
	key := entity.AggregateKey{InstitutionID: testInstitution, ItemID: "item-1", WarehouseID: "wh-1"}
	p := env.store.projections[key]
	p.QuantityOnHand = p.QuantityOnHand.Add(d("7"))
	env.store.projections[key] = p

	out, err = qry.Verify(ctx, testInstitution, "item-1", "wh-1")
	require.NoError(t, err)
	assert.False(t, out.Consistent)
	assert.Contains(t, out.Drift, "quantity_on_hand")
}

func TestQuery_ReplayAsOfSequence(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "100", "10"))
	require.NoError(t, err)
	_, err = env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-2", "50", "16"))
	require.NoError(t, err)

	antes, err := newQueryUC(env).Replay(ctx, testInstitution, "item-1", "wh-1", 1)
	require.NoError(t, err)
	assert.True(t, antes.QuantityOnHand.Equal(d("100")))
	assert.True(t, antes.AverageCost.Equal(d("10")))
	assert.Equal(t, int64(1), antes.LastEventSequence)

	completo, err := newQueryUC(env).Replay(ctx, testInstitution, "item-1", "wh-1", 0)
	require.NoError(t, err)
	assert.True(t, completo.QuantityOnHand.Equal(d("150")))
	assert.True(t, completo.AverageCost.Equal(d("12")))
}

func TestQuery_HistorialPaginadoMasRecientePrimero(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()

	for i, k := range []string{"GRN-1", "GRN-2", "GRN-3"} {
		_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", k, "10", "1"))
		require.NoError(t, err, i)
	}

	page, err := newQueryUC(env).History(ctx, testInstitution, "item-1", "wh-1", dto.PageRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].SequenceNumber)
	assert.Equal(t, int64(2), page[1].SequenceNumber)
}

func TestQuery_ListaReservasDelAgregado(t *testing.T) {
	env := newTestEnv(t)
	env.addItem("item-1", nil)
	ctx := context.Background()

	_, err := env.uc.Receive(ctx, testInstitution, testUser, recibir("item-1", "wh-1", "GRN-1", "100", "10"))
	require.NoError(t, err)

	_, err = env.uc.Reserve(ctx, testInstitution, testUser, dto.ReserveStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("30"), OrderRef: "SO-1", IdempotencyKey: "RES-1",
	})
	require.NoError(t, err)
	_, err = env.uc.Reserve(ctx, testInstitution, testUser, dto.ReserveStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("20"), OrderRef: "SO-2", IdempotencyKey: "RES-2",
	})
	require.NoError(t, err)
	_, err = env.uc.Ship(ctx, testInstitution, testUser, dto.ShipStockRequest{
		ItemID: "item-1", WarehouseID: "wh-1", Quantity: d("20"), OrderRef: "SO-2", IdempotencyKey: "SHP-1",
	})
	require.NoError(t, err)

	list, err := newQueryUC(env).ListReservations(ctx, testInstitution, "item-1", "wh-1", dto.PageRequest{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	porOrden := make(map[string]dto.ReservationDTO, len(list))
	for _, r := range list {
		porOrden[r.OrderRef] = r
	}
	assert.Equal(t, entity.ReservationReserved, porOrden["SO-1"].Status)
	assert.True(t, porOrden["SO-1"].Quantity.Equal(d("30")))
	assert.Equal(t, entity.ReservationShipped, porOrden["SO-2"].Status)
}
