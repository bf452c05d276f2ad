package common

const MiB = 1 << 20
