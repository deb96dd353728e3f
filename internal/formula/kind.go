package formula

import "fmt"

// Kind identifies the operation of a formula node. The set is closed: every
// switch over Kind in this package is exhaustive and panics on anything else.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindConstant
	KindAnd
	KindOr
	KindNot
	KindFutureNot
	KindAttribute
	KindDeferred
	KindSkip
	KindFlattened
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "EMPTY"
	case KindConstant:
		return "CONSTANT"
	case KindAnd:
		return "AND"
	case KindOr:
		return "OR"
	case KindNot:
		return "NOT"
	case KindFutureNot:
		return "FUTURE_NOT"
	case KindAttribute:
		return "ATTRIBUTE"
	case KindDeferred:
		return "DEFERRED"
	case KindSkip:
		return "SKIP"
	case KindFlattened:
		return "FLATTENED"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// classID is the per-kind constant mixed into structural hashes.
// The values are part of persisted cache keys and must never change.
func (k Kind) classID() uint64 {
	switch k {
	case KindEmpty:
		return 0x3c6ef372fe94f82b
	case KindConstant:
		return 0xa54ff53a5f1d36f1
	case KindAnd:
		return 0x510e527fade682d1
	case KindOr:
		return 0x9b05688c2b3e6c1f
	case KindNot:
		return 0x1f83d9abfb41bd6b
	case KindFutureNot:
		return 0x5be0cd19137e2179
	case KindAttribute:
		return 0xcbbb9d5dc1059ed8
	case KindDeferred:
		return 0x629a292a367cd507
	case KindSkip:
		return 0x9159015a3070dd17
	case KindFlattened:
		return 0x152fecd8f70e5939
	default:
		panic(fmt.Sprintf("formula: unknown kind %d", uint8(k)))
	}
}

// operationCost is the relative CPU weight of processing one element.
func (k Kind) operationCost() int64 {
	switch k {
	case KindEmpty, KindSkip:
		return 0
	case KindConstant, KindAttribute, KindFlattened:
		return 1
	case KindAnd:
		return 7
	case KindOr:
		return 9
	case KindNot, KindFutureNot:
		return 13
	case KindDeferred:
		return DefaultSupplierOperationCost
	default:
		panic(fmt.Sprintf("formula: unknown kind %d", uint8(k)))
	}
}
