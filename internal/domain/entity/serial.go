package entity

import "time"

// Estados de un serial. available→reserved→sold son unidireccionales;
// la única vuelta permitida es returned→available.
const (
	SerialAvailable = "available"
	SerialReserved  = "reserved"
	SerialSold      = "sold"
	SerialDamaged   = "damaged"
	SerialReturned  = "returned"
)

// Serial es la trazabilidad por unidad de un item serializado.
// Único por (institución, item, serial).
type Serial struct {
	ID            string
	InstitutionID string
	ItemID        string
	WarehouseID   string
	SerialNumber  string
	BatchID       string // opcional: lote de origen
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// serialTransitions define las transiciones de estado permitidas.
var serialTransitions = map[string][]string{
	SerialAvailable: {SerialReserved, SerialSold, SerialDamaged},
	SerialReserved:  {SerialSold, SerialAvailable}, // liberar una reserva vuelve a available
	SerialSold:      {SerialReturned},
	SerialReturned:  {SerialAvailable},
	SerialDamaged:   {},
}

// CanTransition verifica si el serial puede pasar al estado destino.
func (s *Serial) CanTransition(to string) bool {
	for _, allowed := range serialTransitions[s.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}
