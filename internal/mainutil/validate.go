package mainutil

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/validator.v2"
)

// Validate checks the "traits" tags of v: nz, gt, ge, lt and le on
// numeric fields, and oneof on strings.
func Validate(v interface{}) error {
	vt := validator.NewValidator()
	vt.SetTag("traits")
	vt.SetValidationFunc("nz", nz)
	vt.SetValidationFunc("gt", compare("<=", func(c int) bool { return c > 0 }))
	vt.SetValidationFunc("ge", compare("<", func(c int) bool { return c >= 0 }))
	vt.SetValidationFunc("lt", compare(">=", func(c int) bool { return c < 0 }))
	vt.SetValidationFunc("le", compare(">", func(c int) bool { return c <= 0 }))
	vt.SetValidationFunc("oneof", oneof)
	errs, _ := vt.Validate(v).(validator.ErrorMap)
	for k, err := range errs {
		if len(err[0].Error()) > 0 {
			return fmt.Errorf("%s %s?", k, err)
		}
		return fmt.Errorf("%s?", k)
	}
	return nil
}

func elem(v interface{}) (reflect.Value, bool) {
	st := reflect.ValueOf(v)
	if st.Kind() == reflect.Ptr {
		if st.IsNil() {
			return st, false
		}
		st = st.Elem()
	}
	return st, true
}

func nz(v interface{}, _ string) error {
	st, ok := elem(v)
	if !ok {
		return nil
	}
	if c, _ := cmp(st, "0"); c == 0 {
		return fmt.Errorf("")
	}
	return nil
}

// compare builds a validation func failing with "<op> param" unless
// test accepts the sign of value minus param.
func compare(op string, test func(int) bool) validator.ValidationFunc {
	return func(v interface{}, param string) error {
		st, ok := elem(v)
		if !ok {
			return nil
		}
		c, err := cmp(st, param)
		if err != nil {
			panic(fmt.Sprintf("mainutil.Validate: %s", err))
		}
		if !test(c) {
			return fmt.Errorf("%s %s", op, param)
		}
		return nil
	}
}

func cmp(st reflect.Value, param string) (int, error) {
	switch st.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		p, err := strconv.ParseInt(param, 0, 64)
		return sign(st.Int() > p, st.Int() < p), err
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		p, err := strconv.ParseUint(param, 0, 64)
		return sign(st.Uint() > p, st.Uint() < p), err
	case reflect.Float32, reflect.Float64:
		p, err := strconv.ParseFloat(param, 64)
		return sign(st.Float() > p, st.Float() < p), err
	}
	panic("mainutil.Validate: unsupported type " + st.Kind().String())
}

func sign(gt, lt bool) int {
	switch {
	case gt:
		return 1
	case lt:
		return -1
	}
	return 0
}

// oneof accepts strings listed in param separated by '|'.
func oneof(v interface{}, param string) error {
	st, ok := elem(v)
	if !ok {
		return nil
	}
	if st.Kind() != reflect.String {
		panic("mainutil.Validate: oneof on " + st.Kind().String())
	}
	for _, z := range strings.Split(param, "|") {
		if z == st.String() {
			return nil
		}
	}
	return fmt.Errorf("not one of %s", param)
}
