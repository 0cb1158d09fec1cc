// Package testbed provides a small hand-encoded runtime image for exercising
// the bridge end to end without a toolchain. The image is equivalent to:
//
//	(module
//	  (memory (export "memory") 1)
//	  (data (i32.const 16) "hello")
//	  (global $released (mut i32) (i32.const 0))
//	  (global $last (mut i32) (i32.const 0))
//	  (global $conv (mut i32) (i32.const 1))
//	  (func (export "release") (param i32) ...)          ;; $released++, $last = p0
//	  (func (export "set_convert_strings") (param i32))  ;; $conv = p0
//	  (func (export "string_ptr") (param i32) (result i32))  ;; p0
//	  (func (export "string_len") (param i32) (result i32))  ;; 5
//	  (func (export "released") (result i32))
//	  (func (export "last_released") (result i32))
//	  (func (export "convert_strings") (result i32))
//	  (func (export "add") (param i32 i32) (result i32))
//	  (func (export "trap") unreachable))
//
// Representations are guest addresses: string_ptr returns its argument and
// string_len always returns 5, so HelloRep reads back as "hello".
package testbed
