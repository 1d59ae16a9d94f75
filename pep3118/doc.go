// Package pep3118 exports nd arrays through the buffer-exchange contract
// described by PEP 3118: a pointer to the first byte, shape, byte strides,
// item size and an element format string in the struct-module mini
// language.
//
// MakeFormat compiles an ndt type into a format string:
//
//	int32                          @i
//	3 * 4 * float64                (3,4)d
//	{a: int8 @0, b: int32 @4}      T{b:a:xxxi:b:}
//
// GetBuffer validates a request against the array and fills a View; the view
// must be released with View.Release once the consumer is done with it.
//
//	v, err := pep3118.GetBuffer(arr, pep3118.RecordsRO)
//	if err != nil {
//		return err
//	}
//	defer v.Release()
package pep3118
