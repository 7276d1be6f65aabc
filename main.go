// Command dorank reports an organization's Drupal.org directory standing.
package main

import "github.com/JakeFAU/dorank/cmd"

func main() {
	cmd.Execute()
}
