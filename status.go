package hwire

import (
	"strconv"

	"github.com/corewire/hwire/internal/netio"
)

// Status is the status code and reason phrase of a response.
type Status struct {
	Code   int
	Reason string
}

func (s Status) String() string {
	if s.Reason == "" {
		return strconv.Itoa(s.Code)
	}
	return strconv.Itoa(s.Code) + " " + s.Reason
}

// Informational reports a 1xx status.
func (s Status) Informational() bool { return s.Code >= 100 && s.Code < 200 }

// readStatusLine reads "HTTP/1.x SP code [SP reason]" bounded by max bytes.
func readStatusLine(r *netio.Reader, max int) (proto string, st Status, err error) {
	line, found, err := r.ReadLine(max)
	if err != nil {
		return "", st, err
	}
	if !found {
		return "", st, ErrStatusLineTooLong
	}
	return parseStatusLine(string(line))
}

func parseStatusLine(line string) (proto string, st Status, err error) {
	if len(line) < 12 || line[8] != ' ' {
		return "", st, protocolError("status line", "malformed status line %q", line)
	}
	proto = line[:8]
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return "", st, protocolError("status line", "unsupported protocol %q", proto)
	}
	codeStr := line[9:12]
	if len(line) > 12 && line[12] != ' ' {
		return "", st, protocolError("status line", "malformed status code in %q", line)
	}
	for i := 0; i < 3; i++ {
		if codeStr[i] < '0' || codeStr[i] > '9' {
			return "", st, protocolError("status line", "malformed status code %q", codeStr)
		}
	}
	st.Code, _ = strconv.Atoi(codeStr)
	if st.Code < 100 {
		return "", st, protocolError("status line", "invalid status code %d", st.Code)
	}
	if len(line) > 13 {
		st.Reason = line[13:]
	}
	return proto, st, nil
}
