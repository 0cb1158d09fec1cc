package testbed

import (
	"os"
	"path/filepath"
)

const (
	valI32  = 0x7f
	opEnd   = 0x0b
	opLocal = 0x20
	opGGet  = 0x23
	opGSet  = 0x24
	opConst = 0x41
	opAdd   = 0x6a
)

// HelloRep is the representation of the guest string "hello".
const HelloRep = 16

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint32(len(content)))...)
	return append(out, content...)
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint32(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint32(len(results)))...)
	return append(out, results...)
}

func body(code ...byte) []byte {
	b := append([]byte{0x00}, code...)
	return append(uleb(uint32(len(b))), b...)
}

func export(n string, kind byte, idx uint32) []byte {
	out := name(n)
	out = append(out, kind)
	return append(out, uleb(idx)...)
}

func mutI32(v byte) []byte {
	return []byte{valI32, 0x01, opConst, v, opEnd}
}

// Guest returns the test runtime image described in the package comment.
func Guest() []byte {
	i32 := []byte{valI32}
	types := vec(
		funcType(i32, nil),                    // 0: (i32) -> ()
		funcType(i32, i32),                    // 1: (i32) -> i32
		funcType(nil, i32),                    // 2: () -> i32
		funcType([]byte{valI32, valI32}, i32), // 3: (i32, i32) -> i32
		funcType(nil, nil),                    // 4: () -> ()
	)
	funcs := vec([]byte{0}, []byte{0}, []byte{1}, []byte{1}, []byte{2}, []byte{2}, []byte{2}, []byte{3}, []byte{4})
	memory := vec([]byte{0x00, 0x01})
	globals := vec(mutI32(0), mutI32(0), mutI32(1))
	exports := vec(
		export("memory", 0x02, 0),
		export("release", 0x00, 0),
		export("set_convert_strings", 0x00, 1),
		export("string_ptr", 0x00, 2),
		export("string_len", 0x00, 3),
		export("released", 0x00, 4),
		export("last_released", 0x00, 5),
		export("convert_strings", 0x00, 6),
		export("add", 0x00, 7),
		export("trap", 0x00, 8),
	)
	code := vec(
		body(opGGet, 0, opConst, 1, opAdd, opGSet, 0, opLocal, 0, opGSet, 1, opEnd),
		body(opLocal, 0, opGSet, 2, opEnd),
		body(opLocal, 0, opEnd),
		body(opConst, 5, opEnd),
		body(opGGet, 0, opEnd),
		body(opGGet, 1, opEnd),
		body(opGGet, 2, opEnd),
		body(opLocal, 0, opLocal, 1, opAdd, opEnd),
		body(0x00, opEnd),
	)
	segment := []byte{0x00, opConst, HelloRep, opEnd}
	segment = append(segment, name("hello")...)
	data := vec(segment)

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, types)...)
	out = append(out, section(3, funcs)...)
	out = append(out, section(5, memory)...)
	out = append(out, section(6, globals)...)
	out = append(out, section(7, exports)...)
	out = append(out, section(10, code)...)
	out = append(out, section(11, data)...)
	return out
}

// Empty returns a valid module with no exports.
func Empty() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

// Write stores wasm as runtime.wasm in dir and returns its path.
func Write(dir string, wasm []byte) (string, error) {
	path := filepath.Join(dir, "runtime.wasm")
	if err := os.WriteFile(path, wasm, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
