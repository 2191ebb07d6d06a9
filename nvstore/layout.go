package nvstore

import "eeparam-go/x/strconvx"

// ParamDef is the build-time declaration of one parameter.
type ParamDef struct {
	Name  string
	Size  int // bytes per value
	Count int // wear-leveling slots
}

// BuildTable packs defs back to back starting at start, in order, and checks
// that the result fits a medium of mediumSize bytes.
func BuildTable(start, mediumSize int, defs []ParamDef) (Table, error) {
	if start < 0 || start > 0xFFFF {
		return nil, layoutErr("start address " + strconvx.Itoa(start) + " out of range")
	}
	t := make(Table, 0, len(defs))
	addr := start
	for i, def := range defs {
		if def.Size < 1 || def.Size > MaxElementSize {
			return nil, layoutErr("param " + strconvx.Itoa(i) + " (" + def.Name + "): bad size " + strconvx.Itoa(def.Size))
		}
		if def.Count < 2 || def.Count > 0xFFFF {
			return nil, layoutErr("param " + strconvx.Itoa(i) + " (" + def.Name + "): bad slot count " + strconvx.Itoa(def.Count))
		}
		end := addr + (def.Size+1)*def.Count
		if end > AddressSpace {
			return nil, layoutErr("param " + strconvx.Itoa(i) + " (" + def.Name + "): layout ends at " +
				strconvx.Itoa(end) + ", past the 16-bit address space")
		}
		if end > mediumSize {
			return nil, layoutErr("param " + strconvx.Itoa(i) + " (" + def.Name + "): layout ends at " +
				strconvx.Itoa(end) + ", medium has " + strconvx.Itoa(mediumSize) + " bytes")
		}
		t = append(t, Descriptor{
			Name:        def.Name,
			ElementSize: uint8(def.Size),
			SlotCount:   uint16(def.Count),
			Base:        uint16(addr),
		})
		addr = end
	}
	if err := t.Validate(mediumSize); err != nil {
		return nil, err
	}
	return t, nil
}
