// Package commands defines the kakioki CLI and wires dependencies for subcommands.
//
// Commands
//
//   - keygen       Create the account key pair and publish the public key
//   - fingerprint  Print the public key fingerprint
//   - unlock       Unlock the private key and retain the password for the session
//   - send         Encrypt and send a message to a friend
//   - retry        Resend a failed message
//   - history      Load and decrypt the latest messages with a friend
//   - listen       Follow a conversation in realtime
//   - block        Block a friend
//   - unblock      Lift a block
//   - remove       Delete a conversation for both sides
//   - logout       Drop cached keys and the retained password
//
// # Implementation
//
// The root command loads the configuration (YAML file, .env, KAKIOKI_*
// variables, then flags), builds the logger and the dependency graph before
// any subcommand runs, and closes it afterwards.
package commands
