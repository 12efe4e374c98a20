package storage

const (
	// AccountStorageOverhead is the per-account byte overhead charged on top of data.
	AccountStorageOverhead = 128
	// LamportsPerByteYear is the rent rate.
	LamportsPerByteYear = 3480
	// ExemptionYears is how many years of rent an allocation must deposit.
	ExemptionYears = 2
)

// RentExemptMinimum is the deposit an allocation of dataLen bytes must carry.
func RentExemptMinimum(dataLen int) uint64 {
	return uint64(AccountStorageOverhead+dataLen) * LamportsPerByteYear * ExemptionYears
}
