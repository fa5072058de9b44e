// Package hardening protects the terminal's transport and display:
// certificate pinning for backend connections and a screen guard that
// keeps sensitive screens out of screenshots, recordings and the recents
// list.
//
// Both are relaxed in development builds. Pinning is disabled entirely so
// debugging proxies work, and the screen guard is off unless a screen
// forces it on.
package hardening
