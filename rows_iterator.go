package veloxcsv

import (
	"io"
	"iter"
)

// Rows returns a range-over-func iterator over r's remaining records, each
// paired with any error encountered producing it. Iteration stops after
// the first error (other than io.EOF, which simply ends the sequence) or
// when the consuming range loop breaks early.
//
// 	for record, err := range r.Rows() {
// 		if err != nil {
// 			return err
// 		}
// 		use(record)
// 	}
func (r *Reader) Rows() iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		for {
			record, err := r.Read()
			if err != nil {
				if err == io.EOF {
					return
				}
				yield(nil, err)
				return
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}
