package ledger

import (
	"context"
	"time"

	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
	"github.com/jhoicas/ledger-inventario/internal/domain/repository"
)

// Repos agrupa los repositorios atados a una misma transacción. El TxRunner
// los construye sobre la tx para que append de eventos, fold de proyección y
// sub-ledgers commiteen o rueden atrás juntos.
type Repos struct {
	Events       repository.EventRepository
	Projections  repository.ProjectionRepository
	Reservations repository.ReservationRepository
	Batches      repository.BatchRepository
	Serials      repository.SerialRepository
}

// TxRunner ejecuta fn dentro de una transacción de BD, pasando repositorios
// atados a esa tx. Es la unidad de atomicidad del ledger.
type TxRunner interface {
	Run(ctx context.Context, fn func(r Repos) error) error
}

// AlertEvaluator es el motor de reorden, invocado después del commit de cada
// comando que toca la proyección. Lee solo la proyección.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, key entity.AggregateKey) error
}

// Config son los parámetros de concurrencia de la capa de comandos.
type Config struct {
	LockTimeout  time.Duration // espera máxima por el lock del agregado
	MaxRetries   int           // reintentos ante conflictos transitorios
	RetryBackoff time.Duration // backoff base entre reintentos (lineal por intento)
}
