package banner

import (
	"fmt"
	"io"
)

const Version = "1.0.0"

func Print(w io.Writer, role, provider string) {
	banner := `
    ____  ____  _____    ____
   / __ \/ __ \/ ___/   / __ \
  / / / / / / /\__ \   / / / /
 / /_/ / /_/ /___/ /  / /_/ /
/_____/\____//____/   \___\_\
            v%s - %s on %s
    `
	fmt.Fprintf(w, banner, Version, role, provider)
	fmt.Fprintln(w, "\n------------------------------------------------")
}
