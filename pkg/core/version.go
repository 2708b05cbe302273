package core

// Version is the SDK version stamped into every context snapshot.
const Version = "0.4.0"
