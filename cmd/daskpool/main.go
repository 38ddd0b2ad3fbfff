// Command daskpool starts Dask clusters on a worker-management API and waits
// for launched workers.
package main

func main() {
	Execute()
}
