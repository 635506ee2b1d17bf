package types

// Version is the canonical project version. The library and the CLI share
// it, and the x-ms-client-version header derives from it.
const Version = "0.3.0"
