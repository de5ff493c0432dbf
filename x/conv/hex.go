package conv

const hexd = "0123456789ABCDEF"

// Hex renders b as space separated two-digit hex pairs ("B4 C5 00").
func Hex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	out := make([]byte, 0, len(b)*3-1)
	for i, v := range b {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, hexd[v>>4], hexd[v&0xF])
	}
	return string(out)
}
