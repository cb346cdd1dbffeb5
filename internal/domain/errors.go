package domain

import "errors"

// Errores de dominio (sin dependencias externas).
// Los handlers HTTP los mapean a códigos estables; ver interfaces/http/errors.go.
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrUserNotFound       = errors.New("usuario no encontrado")
	ErrEmailAlreadyExists = errors.New("el email ya está registrado")
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrDuplicate          = errors.New("recurso duplicado")
	ErrUnauthorized       = errors.New("no autorizado")
	ErrForbidden          = errors.New("acceso denegado")

	// Reglas de negocio del ledger (no se reintentan automáticamente).
	ErrInsufficientStock          = errors.New("stock insuficiente")
	ErrInsufficientAvailableStock = errors.New("stock disponible insuficiente")
	ErrMissingReason              = errors.New("el ajuste requiere un motivo")
	ErrSerialUnavailable          = errors.New("serial no disponible")
	ErrBatchExhausted             = errors.New("lotes insuficientes para cubrir la salida")
	ErrReservationNotFound        = errors.New("reserva no encontrada")
	ErrInvalidReservationState    = errors.New("estado de reserva inválido para la operación")

	// Idempotencia: el mismo (agregado, clave) ya fue aplicado. El caller lo trata
	// como éxito-sin-efecto, nunca se re-appende el evento.
	ErrDuplicateEvent = errors.New("evento duplicado (clave de idempotencia ya usada)")

	// Conflictos transitorios de concurrencia: la capa de comandos los reintenta
	// con backoff acotado y, agotados los intentos, expone ErrConflict.
	ErrStaleProjection      = errors.New("proyección desactualizada, recargar y reintentar")
	ErrAggregateLockTimeout = errors.New("timeout esperando el lock del agregado")
	ErrConflict             = errors.New("conflicto de concurrencia, intente de nuevo")

	// El log de eventos es inmutable: cualquier update/delete se rechaza siempre.
	ErrEventLogImmutable = errors.New("el log de eventos es inmutable")
)

// IsTransient indica si el error es un conflicto transitorio de concurrencia
// que la capa de comandos puede reintentar.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStaleProjection) || errors.Is(err, ErrAggregateLockTimeout)
}
