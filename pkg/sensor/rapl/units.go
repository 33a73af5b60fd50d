package rapl

// MSR_RAPL_POWER_UNIT holds three scale fields shared by all RAPL domains:
//
//   - Power Units, bits 3:0. Watts = raw * 1/2^PU. Default 0011b (1/8 W).
//   - Energy Status Units, bits 12:8. Joules = raw * 1/2^ESU. Default
//     10000b (15.3 µJ).
//   - Time Units, bits 19:16. Seconds = raw * 1/2^TU. Default 1010b (976 µs).
const (
	puShift  = 0
	puMask   = 0xf
	esuShift = 8
	esuMask  = 0x1f
	tuShift  = 16
	tuMask   = 0xf
)

// Units are the multipliers decoded from MSR_RAPL_POWER_UNIT.
type Units struct {
	Power  float64 // watts per raw power unit
	Energy float64 // joules per raw energy unit
	Time   float64 // seconds per raw time unit
}

// DecodeUnits decodes the three scale fields of a raw MSR_RAPL_POWER_UNIT value.
func DecodeUnits(raw uint64) Units {
	return Units{
		Power:  scale(raw, puShift, puMask),
		Energy: scale(raw, esuShift, esuMask),
		Time:   scale(raw, tuShift, tuMask),
	}
}

func scale(raw uint64, shift, mask uint) float64 {
	return 1.0 / float64(uint64(1)<<((raw>>shift)&uint64(mask)))
}
